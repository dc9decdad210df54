package project

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/events"
	"github.com/aristath/bob/internal/scheduler"
	"github.com/aristath/bob/internal/state"
)

// ErrAborted wraps the error of a task that stopped the whole build.
var ErrAborted = errors.New("build aborted")

// outcome is what one ready task produced during a wave.
type outcome struct {
	attempted bool  // False when the wave stopped before the task started
	executed  bool  // Build was invoked; only executed tasks have a result
	ok        bool  // Outputs are valid for dependents
	fatal     error // Non-nil aborts the build
	result    builder.TaskResult
}

// Build runs an incremental build: tasks whose outputs are up to date are
// skipped, the rest execute in dependency order, wave by wave. It returns a
// result for every executed task. Compile errors are reported in results;
// the returned error is reserved for failures of the build itself. State is
// saved whatever happens.
func (p *Project) Build(ctx context.Context, progress events.Progress) (results []builder.TaskResult, err error) {
	if progress == nil {
		progress = events.NullProgress{}
	}
	started := time.Now()

	stateRes := p.fs.Get(path.Join(p.fs.BuildDirectory(), state.FileName))
	st := state.Load(stateRes, p.logger)

	defer func() {
		if saveErr := st.Save(stateRes); saveErr != nil {
			p.logger.Error("failed to save build state", "path", stateRes.Path(), "error", saveErr)
			if err == nil {
				err = fmt.Errorf("saving build state: %w", saveErr)
			}
		}
		p.finish(ctx, started, results, err)
		progress.Done()
	}()

	tasks, err := p.prepare()
	if err != nil {
		return nil, err
	}

	p.setBuilding(true)
	defer p.setBuilding(false)

	w := scheduler.NewWorklist()
	w.Add(tasks...)
	p.cfg.Bus.Emit(events.BuildStartedEvent{Tasks: w.Len(), Timestamp: time.Now()})
	p.logger.Info("build started", "tasks", w.Len(), "concurrency", p.cfg.Concurrency)
	progress.BeginTask("Building", w.Len())

	for !w.Done() {
		if err := canceled(ctx, progress); err != nil {
			return results, err
		}

		ready, blocked := w.Next()
		for _, t := range blocked {
			p.logger.Warn("task not run, an input failed to build", "task", t.String(), "waiting", w.Unresolved(t))
			p.cfg.Bus.Emit(events.TaskBlockedEvent{ID: t.String(), Waiting: w.Unresolved(t), Timestamp: time.Now()})
			progress.Worked(1)
		}
		if len(ready) == 0 {
			if len(blocked) > 0 {
				continue
			}
			unresolvable := w.Unresolvable()
			p.logger.Error("build cannot make progress", "error", unresolvable)
			return results, unresolvable
		}

		outcomes, fatal := p.runWave(ctx, progress, st, ready)
		for i, t := range ready {
			o := outcomes[i]
			if !o.attempted {
				w.Release(t)
				continue
			}
			w.Complete(t, o.ok)
			if o.executed {
				results = append(results, o.result)
			}
		}
		known := w.Len()
		w.Add(p.takeDiscovered()...)
		progress.AddTotal(w.Len() - known)

		if fatal != nil {
			if err := canceled(ctx, progress); err != nil && interrupted(fatal) {
				return results, err
			}
			return results, fmt.Errorf("%w: %w", ErrAborted, fatal)
		}
	}

	return results, nil
}

// runWave executes ready tasks concurrently. Outcomes are indexed like ready
// so results keep ready order. The first fatal error stops tasks that have
// not started yet.
func (p *Project) runWave(ctx context.Context, progress events.Progress, st *state.State, ready []*builder.Task) ([]outcome, error) {
	outcomes := make([]outcome, len(ready))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, t := range ready {
		g.Go(func() error {
			if gctx.Err() != nil || progress.IsCanceled() {
				return nil
			}
			outcomes[i] = p.runTask(ctx, progress, t, st)
			outcomes[i].attempted = true
			progress.Worked(1)
			return outcomes[i].fatal
		})
	}

	return outcomes, g.Wait()
}

// runTask decides whether t is up to date and builds it if not.
func (p *Project) runTask(ctx context.Context, progress events.Progress, t *builder.Task, st *state.State) (o outcome) {
	start := time.Now()
	id := t.String()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s: %v", id, r)
			o = p.fail(t, st, err, time.Since(start))
		}
	}()

	sig, err := t.Signature()
	if err != nil {
		return p.fail(t, st, err, time.Since(start))
	}

	if upToDate(t, sig, st) {
		p.logger.Debug("task up to date", "task", id)
		p.cfg.Bus.Emit(events.TaskSkippedEvent{ID: id, Timestamp: time.Now()})
		return outcome{ok: true}
	}

	p.cfg.Bus.Emit(events.TaskStartedEvent{ID: id, Builder: builderName(t), Timestamp: time.Now()})

	err = p.buildLocked(t)
	if interrupted(err) && canceled(ctx, progress) != nil {
		return p.interrupt(t, st, err)
	}

	var issues []builder.Issue
	var multi *builder.MultipleCompileError
	if errors.As(err, &multi) && !multi.HasErrors() {
		issues = multi.Issues
		err = nil
	}
	if err != nil {
		return p.fail(t, st, err, time.Since(start))
	}

	var missing []string
	for _, out := range t.Outputs {
		if !out.Exists() {
			missing = append(missing, out.Path())
		}
	}
	if len(missing) > 0 {
		err := &builder.CompileError{
			Resource: t.Input(),
			Message:  "outputs not produced: " + strings.Join(missing, ", "),
		}
		return p.fail(t, st, err, time.Since(start))
	}

	for _, out := range t.Outputs {
		st.PutSignature(out.AbsPath(), sig)
	}

	duration := time.Since(start)
	message := ""
	if len(issues) > 0 {
		message = fmt.Sprintf("%d diagnostics", len(issues))
		for _, issue := range issues {
			p.logger.Warn("diagnostic", "task", id, "issue", issue.String())
		}
	}
	p.logger.Debug("task built", "task", id, "duration", duration)
	p.cfg.Bus.Emit(events.TaskCompletedEvent{ID: id, Message: message, Duration: duration, Timestamp: time.Now()})

	return outcome{
		executed: true,
		ok:       true,
		result: builder.TaskResult{
			Task:     t,
			Status:   builder.ResultSuccess,
			Message:  message,
			Issues:   issues,
			Duration: duration,
		},
	}
}

// buildLocked runs the builder while holding the locks of every output of t.
// The locks are released even if the builder panics.
func (p *Project) buildLocked(t *builder.Task) error {
	outputs := t.OutputPaths()
	p.locks.LockAll(outputs)
	defer p.locks.UnlockAll(outputs)
	return t.Builder.Build(t)
}

// interrupt handles a builder stopped by cancellation: the outputs of t are
// invalidated but the task gets no result, since it did not finish.
func (p *Project) interrupt(t *builder.Task, st *state.State, err error) outcome {
	for _, out := range t.Outputs {
		st.Clear(out.AbsPath())
	}
	p.logger.Info("task interrupted", "task", t.String(), "error", err)
	return outcome{fatal: err}
}

// fail classifies err, invalidates the outputs of t and builds its result.
// Errors that are not compile errors are fatal.
func (p *Project) fail(t *builder.Task, st *state.State, err error, duration time.Duration) outcome {
	for _, out := range t.Outputs {
		st.Clear(out.AbsPath())
	}

	result := builder.TaskResult{
		Task:     t,
		Status:   builder.ResultFailed,
		Resource: t.Input(),
		Message:  err.Error(),
		Err:      err,
		Duration: duration,
	}

	var fatal error
	var compileErr *builder.CompileError
	var multi *builder.MultipleCompileError
	switch {
	case errors.As(err, &compileErr):
		if compileErr.Resource != nil {
			result.Resource = compileErr.Resource
		}
		result.Line = compileErr.Line
		result.Message = compileErr.Message
	case errors.As(err, &multi):
		result.Issues = multi.Issues
		if first := multi.FirstError(); first != nil {
			if first.Resource != nil {
				result.Resource = first.Resource
			}
			result.Line = first.Line
			result.Message = first.Message
		}
	default:
		fatal = err
	}

	id := t.String()
	if fatal != nil {
		p.logger.Error("task failed, aborting build", "task", id, "error", err)
	} else {
		p.logger.Warn("task failed", "task", id, "error", err)
	}
	p.cfg.Bus.Emit(events.TaskFailedEvent{ID: id, Err: err, Fatal: fatal != nil, Duration: duration, Timestamp: time.Now()})

	return outcome{executed: true, fatal: fatal, result: result}
}

// upToDate reports whether every output exists and was produced by sig.
func upToDate(t *builder.Task, sig []byte, st *state.State) bool {
	for _, out := range t.Outputs {
		if !out.Exists() || !st.Matches(out.AbsPath(), sig) {
			return false
		}
	}
	return true
}

func canceled(ctx context.Context, progress events.Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress.IsCanceled() {
		return context.Canceled
	}
	return nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func builderName(t *builder.Task) string {
	if b, ok := t.Builder.(interface{ Descriptor() builder.Descriptor }); ok {
		return b.Descriptor().Name
	}
	return fmt.Sprintf("%T", t.Builder)
}
