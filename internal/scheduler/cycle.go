package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/bob/internal/builder"
)

// UnresolvableError is returned when a pass makes no progress while tasks
// remain pending: their inputs are produced by tasks that can never run.
type UnresolvableError struct {
	Pending []string // Names of the stuck tasks
	Cycle   []string // Names of the tasks on a dependency cycle, if one was found
}

func (e *UnresolvableError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("dependency cycle between tasks: %s", strings.Join(e.Cycle, ", "))
	}
	return fmt.Sprintf("unresolvable dependencies for %d tasks: %s", len(e.Pending), strings.Join(e.Pending, ", "))
}

// Unresolvable diagnoses why the pending tasks cannot make progress.
func (w *Worklist) Unresolvable() *UnresolvableError {
	pending := w.Pending()
	if len(pending) == 0 {
		return nil
	}

	producers := make(map[string][]*builder.Task)
	for _, t := range pending {
		for _, o := range t.Outputs {
			producers[o.Path()] = append(producers[o.Path()], t)
		}
	}

	// Edge (producer, consumer) means the producer must run first.
	edges := make([]toposort.Edge, 0, len(pending))
	deps := make(map[*builder.Task][]*builder.Task)
	for _, t := range pending {
		edges = append(edges, toposort.Edge{nil, t})
		for _, in := range w.Unresolved(t) {
			for _, p := range producers[in] {
				edges = append(edges, toposort.Edge{p, t})
				deps[t] = append(deps[t], p)
			}
		}
	}

	err := &UnresolvableError{Pending: taskNames(pending)}
	// toposort does not report self-loops consistently, so the peeled set is
	// consulted as well.
	members := cycleMembers(pending, deps)
	if _, sortErr := toposort.Toposort(edges); sortErr != nil || len(members) > 0 {
		err.Cycle = taskNames(members)
	}
	return err
}

// cycleMembers peels off tasks that do not wait on another pending task,
// repeatedly, from both ends. What remains lies on a cycle.
func cycleMembers(pending []*builder.Task, deps map[*builder.Task][]*builder.Task) []*builder.Task {
	remaining := make(map[*builder.Task]bool, len(pending))
	for _, t := range pending {
		remaining[t] = true
	}

	for changed := true; changed; {
		changed = false
		hasDependent := make(map[*builder.Task]bool)
		for t := range remaining {
			for _, d := range deps[t] {
				if remaining[d] {
					hasDependent[d] = true
				}
			}
		}
		for t := range remaining {
			waits := false
			for _, d := range deps[t] {
				if remaining[d] {
					waits = true
					break
				}
			}
			if !waits || !hasDependent[t] {
				delete(remaining, t)
				changed = true
			}
		}
	}

	var members []*builder.Task
	for _, t := range pending {
		if remaining[t] {
			members = append(members, t)
		}
	}
	return members
}

func taskNames(tasks []*builder.Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.String()
	}
	sort.Strings(names)
	return names
}
