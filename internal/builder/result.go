package builder

import (
	"fmt"
	"time"

	"github.com/aristath/bob/internal/resource"
)

// ResultStatus classifies an executed task.
type ResultStatus int

const (
	ResultSuccess ResultStatus = iota
	ResultFailed
)

func (s ResultStatus) String() string {
	if s == ResultSuccess {
		return "success"
	}
	return "failed"
}

// TaskResult is the outcome of one executed task. Skipped tasks have none.
type TaskResult struct {
	Task     *Task
	Status   ResultStatus
	Message  string
	Resource resource.Resource // Attributed resource, failures only
	Line     int               // Meaningful on failure only
	Err      error
	Issues   []Issue // Diagnostics, including warnings on success
	Duration time.Duration
}

// OK reports whether the task succeeded.
func (r TaskResult) OK() bool { return r.Status == ResultSuccess }

func (r TaskResult) String() string {
	if r.OK() {
		if r.Message != "" {
			return fmt.Sprintf("OK   %s (%s)", r.Task, r.Message)
		}
		return fmt.Sprintf("OK   %s", r.Task)
	}
	loc := ""
	if r.Resource != nil {
		loc = r.Resource.Path()
		if r.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, r.Line)
		}
		loc += ": "
	}
	return fmt.Sprintf("FAIL %s: %s%s", r.Task, loc, r.Message)
}

// AllOK reports whether every result succeeded.
func AllOK(results []TaskResult) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}
