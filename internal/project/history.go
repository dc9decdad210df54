package project

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/events"
	"github.com/aristath/bob/internal/persistence"
)

// finish publishes the end of a build and records it in the history store.
func (p *Project) finish(ctx context.Context, started time.Time, results []builder.TaskResult, buildErr error) {
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	duration := time.Since(started)

	p.cfg.Bus.Emit(events.BuildFinishedEvent{
		Executed:  len(results),
		Failed:    failed,
		Err:       buildErr,
		Duration:  duration,
		Timestamp: time.Now(),
	})
	p.logger.Info("build finished", "executed", len(results), "failed", failed, "duration", duration, "error", buildErr)

	if p.cfg.History == nil {
		return
	}

	record := &persistence.BuildRecord{
		Command:    p.cfg.Command,
		StartedAt:  started,
		FinishedAt: started.Add(duration),
		Executed:   len(results),
		Failed:     failed,
		Status:     buildStatus(results, buildErr),
	}
	if record.Command == "" {
		record.Command = "build"
	}
	if buildErr != nil {
		record.Error = buildErr.Error()
	}
	for i, r := range results {
		record.Results = append(record.Results, resultRecord(i+1, r))
	}

	// A cancelled build is still recorded.
	if err := p.cfg.History.RecordBuild(context.WithoutCancel(ctx), record); err != nil {
		p.logger.Warn("failed to record build history", "error", err)
	}
}

func buildStatus(results []builder.TaskResult, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return persistence.StatusCanceled
	case err != nil:
		return persistence.StatusAborted
	case !builder.AllOK(results):
		return persistence.StatusFailed
	default:
		return persistence.StatusSuccess
	}
}

func resultRecord(seq int, r builder.TaskResult) persistence.ResultRecord {
	rec := persistence.ResultRecord{
		Seq:      seq,
		Task:     r.Task.String(),
		Outputs:  r.Task.OutputPaths(),
		Status:   r.Status.String(),
		Line:     r.Line,
		Message:  r.Message,
		Duration: r.Duration,
	}
	if r.Resource != nil {
		rec.Resource = r.Resource.Path()
	}
	return rec
}
