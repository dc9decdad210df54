package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/events"
	"github.com/aristath/bob/internal/persistence"
	"github.com/aristath/bob/internal/tui"
)

// chainable commands may follow each other: bob distclean build.
var chainable = []string{"build", "clean", "distclean"}

func newBuildCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [clean|distclean|build]...",
		Short: "Build every out-of-date task",
		Long: `Build runs an incremental build of the project.

Tasks whose outputs were produced from identical inputs, builder settings and
options are skipped. Every executed task is reported as OK or FAIL; the exit
status is 1 if any task failed.

Examples:
  # Build the project in the current directory
  bob build

  # Rebuild from scratch with a live dashboard
  bob distclean build --tui

  # Build with 8 parallel tasks and no history record
  bob build -j 8 --no-history
`,
		Args:      cobra.OnlyValidArgs,
		ValidArgs: chainable,
		RunE:      a.chain,
	}
	addBuildFlags(cmd, a)
	return cmd
}

func newCleanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [clean|distclean|build]...",
		Short: "Remove every output the build would produce",
		Long: `Clean removes the outputs declared by every task of the project.

The build state is kept; the next build rebuilds whatever is missing.`,
		Args:      cobra.OnlyValidArgs,
		ValidArgs: chainable,
		RunE:      a.chain,
	}
	addBuildFlags(cmd, a)
	return cmd
}

func newDistcleanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "distclean [clean|distclean|build]...",
		Short:     "Delete the build directory, state and history included",
		Args:      cobra.OnlyValidArgs,
		ValidArgs: chainable,
		RunE:      a.chain,
	}
	addBuildFlags(cmd, a)
	return cmd
}

// addBuildFlags registers build flags on every chainable command so that
// they are accepted wherever build appears in the chain.
func addBuildFlags(cmd *cobra.Command, a *app) {
	cmd.Flags().BoolVar(&a.opts.tui, "tui", false, "Show a live dashboard while building")
	cmd.Flags().BoolVar(&a.opts.noHistory, "no-history", false, "Do not record the build in the history database")
}

// chain runs the invoked command followed by its arguments, in order.
func (a *app) chain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	steps := append([]string{cmd.Name()}, args...)

	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}

	command := strings.Join(steps, " ")
	for _, step := range steps {
		var err error
		switch step {
		case "build":
			err = a.runBuild(ctx, ws, command)
		case "clean":
			err = a.runClean(ctx, ws)
		case "distclean":
			err = a.runDistclean(ws)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runBuild(ctx context.Context, ws *workspace, command string) error {
	var store persistence.Store
	if a.cfg.HistoryEnabled() && !a.opts.noHistory {
		s, err := persistence.NewSQLiteStore(ctx, ws.historyPath())
		if err != nil {
			a.logger.Warn("build history unavailable", "path", ws.historyPath(), "error", err)
		} else {
			defer s.Close()
			store = s
		}
	}

	var bus *events.EventBus
	if a.opts.tui {
		bus = events.NewEventBus()
		defer bus.Close()
	}
	p := a.newProject(ws, store, bus, command)

	started := time.Now()
	var results []builder.TaskResult
	var err error
	if a.opts.tui {
		err = tui.Run(ctx, bus, "bob "+command, func(ctx context.Context) error {
			var buildErr error
			results, buildErr = p.Build(ctx, events.NewBusProgress(ctx, bus))
			return buildErr
		})
		if n := bus.Dropped(); n > 0 {
			a.logger.Info("dashboard fell behind, events dropped", "dropped", n)
		}
	} else {
		results, err = p.Build(ctx, nil)
	}

	failed := printResults(a.stdout, results)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d executed tasks failed", ErrBuildFailed, failed, len(results))
	}
	fmt.Fprintf(a.stdout, "%d tasks executed in %v\n", len(results), time.Since(started).Round(time.Millisecond))
	return nil
}

// printResults writes one line per result, diagnostics indented below, and
// returns the number of failures.
func printResults(w io.Writer, results []builder.TaskResult) int {
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
		fmt.Fprintln(w, r.String())
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "    %s\n", issue.String())
		}
	}
	return failed
}

func (a *app) runClean(ctx context.Context, ws *workspace) error {
	removed, err := a.newProject(ws, nil, nil, "clean").Clean(ctx)
	for _, p := range removed {
		fmt.Fprintf(a.stdout, "removed %s\n", p)
	}
	return err
}

func (a *app) runDistclean(ws *workspace) error {
	if err := a.newProject(ws, nil, nil, "distclean").Distclean(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "removed %s%c\n", ws.fs.BuildDirectory(), os.PathSeparator)
	return nil
}
