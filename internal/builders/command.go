package builders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/config"
	"github.com/aristath/bob/internal/process"
	"github.com/aristath/bob/internal/resource"
)

const (
	inputPlaceholder  = "{input}"
	outputPlaceholder = "{output}"
)

// diagnosticPattern matches "file:line[:col]: severity: message".
var diagnosticPattern = regexp.MustCompile(`^(.+?):(\d+)(?::\d+)?:\s*([A-Za-z]+(?: error)?):\s*(.*)$`)

// Command runs an external tool once per input. The input is staged into a
// scratch directory and the tool's output file is read back from it.
type Command struct {
	builder.Base
	ctx    context.Context
	tool   string
	args   []string
	runner *process.Runner
}

// NewCommandFactory returns a factory for Command builders running cfg.Tool.
func NewCommandFactory(ctx context.Context, cfg config.CommandConfig, runner *process.Runner) builder.Factory {
	args := cfg.Args
	if len(args) == 0 {
		args = []string{inputPlaceholder, outputPlaceholder}
	}
	return func(host builder.Host, desc builder.Descriptor) builder.Builder {
		return &Command{
			Base:   builder.NewBase(host, desc),
			ctx:    ctx,
			tool:   cfg.Tool,
			args:   args,
			runner: runner,
		}
	}
}

func (c *Command) Create(input resource.Resource) (*builder.Task, error) {
	return c.DefaultTask(input), nil
}

// ContributeSignature folds the tool and argument template into signatures,
// so changing either rebuilds every output.
func (c *Command) ContributeSignature(w io.Writer) {
	io.WriteString(w, c.tool)
	for _, arg := range c.args {
		io.WriteString(w, "\x00")
		io.WriteString(w, arg)
	}
}

func (c *Command) Build(task *builder.Task) error {
	input := task.Input()
	data, err := input.Content()
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return &builder.CompileError{Resource: input, Message: "file not found", Err: err}
		}
		return err
	}

	dir, err := os.MkdirTemp("", "bob-"+c.Descriptor().Name+"-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	inName := path.Base(input.Path())
	outName := strings.TrimSuffix(inName, path.Ext(inName)) + c.Descriptor().OutExt
	if outName == inName {
		outName = "out-" + outName
	}
	if err := os.WriteFile(filepath.Join(dir, inName), data, 0644); err != nil {
		return fmt.Errorf("staging %s: %w", input.Path(), err)
	}

	argv := make([]string, len(c.args))
	for i, arg := range c.args {
		arg = strings.ReplaceAll(arg, inputPlaceholder, inName)
		argv[i] = strings.ReplaceAll(arg, outputPlaceholder, outName)
	}

	c.Host().Logger().Debug("running tool", "tool", c.tool, "args", argv, "input", input.Path())
	stdout, stderr, runErr := c.runner.Run(c.ctx, dir, c.tool, argv...)
	log := string(stdout) + string(stderr)
	diags := parseDiagnostics(log, input, inName)

	var exitErr *exec.ExitError
	if runErr != nil {
		// A tool killed by cancellation says nothing about the input.
		if err := c.ctx.Err(); err != nil {
			return fmt.Errorf("running %s for %s: %w", c.tool, input.Path(), err)
		}
		if !errors.As(runErr, &exitErr) {
			return fmt.Errorf("running %s for %s: %w", c.tool, input.Path(), runErr)
		}
		if diags.HasErrors() {
			return diags
		}
		return &builder.CompileError{
			Resource: input,
			Message:  fmt.Sprintf("%s exited with status %d: %s", c.tool, exitErr.ExitCode(), firstLine(log)),
			Err:      runErr,
		}
	}

	out, err := os.ReadFile(filepath.Join(dir, outName))
	if err != nil {
		return &builder.CompileError{
			Resource: input,
			Message:  fmt.Sprintf("%s produced no output %s", c.tool, outName),
			Err:      err,
		}
	}
	for _, o := range task.Outputs {
		if err := o.SetContent(out); err != nil {
			return fmt.Errorf("writing %s: %w", o.Path(), err)
		}
	}

	// Warnings from a successful run are reported without failing the task.
	if len(diags.Issues) > 0 {
		return diags
	}
	return nil
}

// parseDiagnostics collects compiler-style lines from log. Paths naming the
// staged input are attributed to input; others resolve relative to it.
func parseDiagnostics(log string, input resource.Resource, stagedName string) *builder.MultipleCompileError {
	diags := &builder.MultipleCompileError{ContextResource: input, RawLog: log}
	for _, line := range strings.Split(log, "\n") {
		m := diagnosticPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])

		r := input
		if file := filepath.ToSlash(m[1]); path.Base(file) != stagedName {
			r = input.Resolve(file)
		}
		diags.Add(builder.ParseSeverity(m[3]), r, lineNo, m[4])
	}
	return diags
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "no output"
	}
	return s
}
