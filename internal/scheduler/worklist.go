// Package scheduler resolves the order in which build tasks may run. Tasks
// never name each other: a task depends on another when one of its inputs is
// an output some other task declares.
package scheduler

import (
	"github.com/aristath/bob/internal/builder"
)

// TaskStatus represents the scheduling state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for producers of its inputs
	TaskRunning                     // Handed out by Next, outcome not reported yet
	TaskCompleted                   // Executed, skipped as up to date, or failed
	TaskBlocked                     // Not executed because a producer failed
)

// Worklist is the pending-task queue drained pass by pass. Tasks discovered
// while building are appended with Add and take part in the next pass.
// Not safe for concurrent use; the scheduling goroutine owns it.
type Worklist struct {
	tasks            []*builder.Task
	status           map[*builder.Task]TaskStatus
	allOutputs       map[string]bool
	completedOutputs map[string]bool
	failedOutputs    map[string]bool
	resolved         int
}

// NewWorklist creates an empty worklist.
func NewWorklist() *Worklist {
	return &Worklist{
		status:           make(map[*builder.Task]TaskStatus),
		allOutputs:       make(map[string]bool),
		completedOutputs: make(map[string]bool),
		failedOutputs:    make(map[string]bool),
	}
}

// Add appends tasks and registers their outputs. Tasks already known are ignored.
func (w *Worklist) Add(tasks ...*builder.Task) {
	for _, t := range tasks {
		if _, known := w.status[t]; known {
			continue
		}
		w.tasks = append(w.tasks, t)
		w.status[t] = TaskPending
		for _, o := range t.Outputs {
			w.allOutputs[o.Path()] = true
		}
	}
}

// Tasks returns every known task in insertion order.
func (w *Worklist) Tasks() []*builder.Task {
	return append([]*builder.Task(nil), w.tasks...)
}

// Status returns the scheduling state of t.
func (w *Worklist) Status(t *builder.Task) TaskStatus {
	return w.status[t]
}

// Len returns the number of known tasks.
func (w *Worklist) Len() int { return len(w.tasks) }

// Resolved returns the number of completed or blocked tasks.
func (w *Worklist) Resolved() int { return w.resolved }

// Done reports whether every task is resolved.
func (w *Worklist) Done() bool { return w.resolved == len(w.tasks) }

// Unresolved returns the inputs of t that some task produces but that are not
// produced yet.
func (w *Worklist) Unresolved(t *builder.Task) []string {
	var deps []string
	for _, in := range t.Inputs {
		p := in.Path()
		if w.allOutputs[p] && !w.completedOutputs[p] {
			deps = append(deps, p)
		}
	}
	return deps
}

// Next runs one pass over the pending tasks in insertion order. Tasks whose
// inputs are all available are returned as ready and marked running. Tasks
// waiting on an output whose producer failed are marked blocked and returned
// separately; their own outputs count as failed in turn. Everything else is
// postponed.
func (w *Worklist) Next() (ready, blocked []*builder.Task) {
	for _, t := range w.tasks {
		if w.status[t] != TaskPending {
			continue
		}
		deps := w.Unresolved(t)
		if len(deps) == 0 {
			w.status[t] = TaskRunning
			ready = append(ready, t)
			continue
		}
		for _, d := range deps {
			if w.failedOutputs[d] {
				w.status[t] = TaskBlocked
				w.resolved++
				w.markOutputs(t, w.failedOutputs)
				blocked = append(blocked, t)
				break
			}
		}
	}
	return ready, blocked
}

// Complete records the outcome of a task returned by Next. Successful and
// skipped tasks make their outputs available; failed tasks block dependents.
func (w *Worklist) Complete(t *builder.Task, ok bool) {
	if w.status[t] != TaskRunning {
		return
	}
	w.status[t] = TaskCompleted
	w.resolved++
	if ok {
		w.markOutputs(t, w.completedOutputs)
	} else {
		w.markOutputs(t, w.failedOutputs)
	}
}

// Release returns a task handed out by Next to the pending state without an
// outcome, e.g. when the build stopped before it was attempted.
func (w *Worklist) Release(t *builder.Task) {
	if w.status[t] == TaskRunning {
		w.status[t] = TaskPending
	}
}

// Pending returns the tasks still waiting, in insertion order.
func (w *Worklist) Pending() []*builder.Task {
	var pending []*builder.Task
	for _, t := range w.tasks {
		if w.status[t] == TaskPending {
			pending = append(pending, t)
		}
	}
	return pending
}

func (w *Worklist) markOutputs(t *builder.Task, set map[string]bool) {
	for _, o := range t.Outputs {
		set[o.Path()] = true
	}
}
