package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/aristath/bob/internal/cli"
	"github.com/aristath/bob/internal/process"
)

func TestKillOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	stop := func() { close(stopped) }

	pm := process.NewProcessManager()
	cmd := process.NewCommand(context.Background(), "sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)
	defer pm.Untrack(cmd)

	release := killOnCancel(ctx, stop, pm, io.Discard)
	defer release()

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	cancel()
	select {
	case err := <-waited:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after cancellation")
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Error("signal handling was not restored")
	}
}

func TestKillOnCancelReleased(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pm := process.NewProcessManager()
	cmd := process.NewCommand(context.Background(), "sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)
	defer func() {
		pm.KillAll()
		cmd.Wait()
	}()

	killOnCancel(ctx, func() {}, pm, io.Discard)()
	cancel()

	time.Sleep(100 * time.Millisecond)
	if pm.Count() != 1 {
		t.Errorf("Expected the process to survive a released watcher, %d tracked", pm.Count())
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		message string
	}{
		{"success", nil, 0, ""},
		{"task failures", fmt.Errorf("%w: 1 of 3 executed tasks failed", cli.ErrBuildFailed), 1, ""},
		{"interrupted", fmt.Errorf("build: %w", context.Canceled), 1, "bob: interrupted\n"},
		{"orchestration error", errors.New("registering builders: boom"), 1, "bob: registering builders: boom\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := exitCode(&buf, tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
			if buf.String() != tt.message {
				t.Errorf("message = %q, want %q", buf.String(), tt.message)
			}
		})
	}
}
