package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/bob/internal/cli"
	"github.com/aristath/bob/internal/process"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracks tool subprocesses started by command builders
	pm := process.NewProcessManager()
	defer killOnCancel(ctx, stop, pm, os.Stderr)()

	return exitCode(os.Stderr, cli.Execute(ctx, pm, args))
}

// killOnCancel kills every tracked subprocess group once ctx is canceled and
// restores default signal handling, so a second Ctrl+C exits at once. The
// returned func stops the watcher and waits for it.
func killOnCancel(ctx context.Context, stop context.CancelFunc, pm *process.ProcessManager, w io.Writer) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			stop()
			if err := pm.KillAll(); err != nil {
				fmt.Fprintf(w, "bob: killing subprocesses: %v\n", err)
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// exitCode reports err on w and maps it to the process exit status. Task
// failures were already printed with the build results.
func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrBuildFailed):
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "bob: interrupted")
		return 1
	default:
		fmt.Fprintf(w, "bob: %v\n", err)
		return 1
	}
}
