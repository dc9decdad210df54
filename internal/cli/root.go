// Package cli implements the bob command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/builders"
	"github.com/aristath/bob/internal/config"
	"github.com/aristath/bob/internal/events"
	"github.com/aristath/bob/internal/persistence"
	"github.com/aristath/bob/internal/process"
	"github.com/aristath/bob/internal/project"
	"github.com/aristath/bob/internal/resource"
)

// ErrBuildFailed is returned when the build ran but at least one task failed.
// The failures have already been printed.
var ErrBuildFailed = errors.New("build failed")

type options struct {
	root      string
	buildDir  string
	config    string
	jobs      int
	verbosity int
	logFormat string
	tui       bool
	noHistory bool
}

// app carries the state shared by all commands of one invocation.
type app struct {
	opts   options
	pm     *process.ProcessManager
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	cfg    *config.BobConfig
}

// NewRootCommand builds the command tree. Subprocesses started by command
// builders are tracked by pm, which may be nil.
func NewRootCommand(pm *process.ProcessManager, stdout, stderr io.Writer) *cobra.Command {
	a := &app{pm: pm, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "bob",
		Short: "Incremental asset build orchestrator",
		Long: `bob turns a directory of source assets into built outputs.

Every file with a registered builder becomes a task. Tasks whose inputs,
builder settings and options are unchanged since the last successful build
are skipped; the rest run in dependency order, several at a time.

Builders are configured in .bob/config.json (or .yaml) in the project root
and ~/.bob/config.json.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.root, "root", ".", "Project root directory")
	pf.StringVar(&a.opts.buildDir, "build-dir", "", "Build directory relative to the root (default from config, build/default)")
	pf.StringVar(&a.opts.config, "config", "", "Project config file (default <root>/.bob/config.json or .yaml)")
	pf.IntVarP(&a.opts.jobs, "jobs", "j", 0, "Tasks run in parallel (default from config, 4)")
	pf.CountVarP(&a.opts.verbosity, "verbose", "v", "Log more (-v info, -vv debug)")
	pf.StringVar(&a.opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newBuildCommand(a),
		newCleanCommand(a),
		newDistcleanCommand(a),
		newHistoryCommand(a),
		newResolveCommand(a),
	)
	return root
}

// Execute runs the command line with args.
func Execute(ctx context.Context, pm *process.ProcessManager, args []string) error {
	root := NewRootCommand(pm, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup() error {
	logger, err := newLogger(a.stderr, a.opts.logFormat, a.opts.verbosity)
	if err != nil {
		return err
	}
	a.logger = logger

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.opts.buildDir != "" {
		cfg.BuildDir = a.opts.buildDir
	}
	if a.opts.jobs > 0 {
		cfg.Concurrency = a.opts.jobs
	}
	a.cfg = cfg
	return nil
}

func (a *app) loadConfig() (*config.BobConfig, error) {
	projectPath := a.opts.config
	if projectPath == "" {
		projectPath = config.ProjectPath(a.opts.root)
	} else if _, err := os.Stat(projectPath); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	var globalPath string
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = filepath.Join(home, ".bob", "config.json")
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("configuration loaded", "global", globalPath, "project", projectPath)
	return cfg, nil
}

// workspace is the file system and builder set shared by chained commands.
type workspace struct {
	fs  *resource.DiskFileSystem
	reg *builder.Registry
}

func (a *app) openWorkspace(ctx context.Context) (*workspace, error) {
	fs, err := resource.NewDiskFileSystem(a.opts.root, a.cfg.BuildDir)
	if err != nil {
		return nil, err
	}
	reg := builder.NewRegistry()
	if err := builders.Bootstrap(ctx, reg, a.cfg, a.pm, a.logger); err != nil {
		return nil, fmt.Errorf("registering builders: %w", err)
	}
	return &workspace{fs: fs, reg: reg}, nil
}

func (a *app) newProject(ws *workspace, store persistence.Store, bus *events.EventBus, command string) *project.Project {
	return project.New(ws.fs, ws.reg, project.Config{
		Concurrency: a.cfg.Concurrency,
		Exclude:     a.cfg.Exclude,
		Options:     a.cfg.Options,
		Logger:      a.logger,
		Bus:         bus,
		History:     store,
		Command:     command,
	})
}

// historyPath is the history database location on disk.
func (ws *workspace) historyPath() string {
	return filepath.Join(ws.fs.RootDirectory(), filepath.FromSlash(ws.fs.BuildDirectory()), persistence.FileName)
}
