// Package process runs the external tools of command builders. Each tool gets
// its own process group so a cancel or shutdown kills everything it spawned.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const waitDelay = 5 * time.Second

// StartError reports that a tool could not be started at all, as opposed to
// running and exiting non-zero.
type StartError struct {
	Tool string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Tool, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// NewCommand creates an exec.Cmd in its own process group. Cancelling ctx
// kills the whole group, not only the immediate child.
func NewCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	return cmd
}

// Execute runs cmd to completion and returns what it wrote to stdout and
// stderr. The command is tracked while it runs. A nil manager runs it
// untracked.
func (pm *ProcessManager) Execute(cmd *exec.Cmd) (stdout []byte, stderr []byte, err error) {
	if cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, nil, fmt.Errorf("%s: output already redirected", cmd.Path)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	// Grandchildren holding the pipes open must not stall Wait forever.
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, nil, &StartError{Tool: cmd.Path, Err: err}
	}
	pm.Track(cmd)
	err = cmd.Wait()
	pm.Untrack(cmd)

	if err != nil {
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("%s: %w", cmd.Path, err)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// killProcessGroup sends SIGKILL to the process group led by cmd.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// Negative PID addresses the group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}

	return nil
}

// ProcessManager tracks running tool subprocesses so they can all be
// terminated on shutdown.
//
//	pm := process.NewProcessManager()
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	go func() {
//		<-ctx.Done()
//		pm.KillAll()
//	}()
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if pm == nil || cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess after cmd.Wait has returned.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if pm == nil || cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates every tracked subprocess group.
func (pm *ProcessManager) KillAll() error {
	if pm == nil {
		return nil
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	if pm == nil {
		return 0
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
