package scheduler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/resource"
)

// newTask builds a task reading the given paths and writing outputs under build/.
func newTask(fs resource.FileSystem, name string, inputs []string, outputs ...string) *builder.Task {
	t := &builder.Task{Name: name}
	for _, in := range inputs {
		t.AddInput(fs.Get(in))
	}
	for _, out := range outputs {
		t.AddOutput(fs.Get(out))
	}
	return t
}

func names(tasks []*builder.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func TestWorklistPostponesUntilProducerCompletes(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	// consumer is added first to show that insertion order does not decide execution order.
	consumer := newTask(fs, "consumer", []string{"build/a.mid"}, "build/a.final")
	producer := newTask(fs, "producer", []string{"a.src"}, "build/a.mid")

	w := NewWorklist()
	w.Add(consumer, producer)

	ready, blocked := w.Next()
	if diff := cmp.Diff([]string{"producer"}, names(ready)); diff != "" {
		t.Fatalf("pass 1 ready mismatch (-want +got):\n%s", diff)
	}
	if len(blocked) != 0 {
		t.Fatalf("unexpected blocked tasks: %v", names(blocked))
	}
	if diff := cmp.Diff([]string{"build/a.mid"}, w.Unresolved(consumer)); diff != "" {
		t.Errorf("unresolved mismatch (-want +got):\n%s", diff)
	}

	// Nothing else can run until the producer reports.
	if ready, _ := w.Next(); len(ready) != 0 {
		t.Fatalf("consumer became ready before producer completed: %v", names(ready))
	}

	w.Complete(producer, true)
	ready, _ = w.Next()
	if diff := cmp.Diff([]string{"consumer"}, names(ready)); diff != "" {
		t.Fatalf("pass 2 ready mismatch (-want +got):\n%s", diff)
	}
	w.Complete(consumer, true)

	if !w.Done() {
		t.Errorf("expected worklist done, resolved %d of %d", w.Resolved(), w.Len())
	}
}

func TestWorklistIndependentTasksReadyTogether(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	a := newTask(fs, "a", []string{"a.foo"}, "build/a.bar")
	b := newTask(fs, "b", []string{"b.foo"}, "build/b.bar")
	// Inputs that no task produces are plain sources.
	c := newTask(fs, "c", []string{"c.foo", "shared.inc"}, "build/c.bar")

	w := NewWorklist()
	w.Add(a, b, c)

	ready, _ := w.Next()
	if diff := cmp.Diff([]string{"a", "b", "c"}, names(ready)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
}

func TestWorklistBlocksDependentsOfFailedProducer(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	producer := newTask(fs, "producer", []string{"a.src"}, "build/a.mid")
	consumer := newTask(fs, "consumer", []string{"build/a.mid"}, "build/a.final")
	transitive := newTask(fs, "transitive", []string{"build/a.final"}, "build/a.pack")
	unrelated := newTask(fs, "unrelated", []string{"b.src"}, "build/b.out")

	w := NewWorklist()
	w.Add(producer, consumer, transitive, unrelated)

	ready, _ := w.Next()
	if diff := cmp.Diff([]string{"producer", "unrelated"}, names(ready)); diff != "" {
		t.Fatalf("ready mismatch (-want +got):\n%s", diff)
	}
	w.Complete(producer, false)
	w.Complete(unrelated, true)

	ready, blocked := w.Next()
	if len(ready) != 0 {
		t.Errorf("unexpected ready tasks: %v", names(ready))
	}
	if diff := cmp.Diff([]string{"consumer", "transitive"}, names(blocked)); diff != "" {
		t.Errorf("blocked mismatch (-want +got):\n%s", diff)
	}
	if w.Status(transitive) != TaskBlocked {
		t.Errorf("transitive status = %v, want blocked", w.Status(transitive))
	}
	if !w.Done() {
		t.Error("expected blocked tasks to count as resolved")
	}
}

func TestWorklistAddDuringBuild(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	collector := newTask(fs, "collector", []string{"list.col"}, "build/list.out")

	w := NewWorklist()
	w.Add(collector)
	ready, _ := w.Next()
	if len(ready) != 1 {
		t.Fatalf("expected collector ready")
	}

	// The collector discovers a generated resource and the task compiling it.
	gen := newTask(fs, "gen", []string{"c.gen"}, "build/c.genc")
	w.Add(gen, gen)
	w.Complete(collector, true)

	if w.Len() != 2 {
		t.Errorf("expected duplicate Add to be ignored, have %d tasks", w.Len())
	}
	ready, _ = w.Next()
	if diff := cmp.Diff([]string{"gen"}, names(ready)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
}

func TestWorklistRelease(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	a := newTask(fs, "a", []string{"a.foo"}, "build/a.bar")

	w := NewWorklist()
	w.Add(a)
	w.Next()
	w.Release(a)

	if w.Status(a) != TaskPending {
		t.Errorf("status = %v, want pending", w.Status(a))
	}
	if diff := cmp.Diff([]string{"a"}, names(w.Pending())); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestUnresolvableCycle(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	a := newTask(fs, "a", []string{"build/b.out"}, "build/a.out")
	b := newTask(fs, "b", []string{"build/a.out"}, "build/b.out")
	waiting := newTask(fs, "waiting", []string{"build/a.out"}, "build/w.out")

	w := NewWorklist()
	w.Add(a, b, waiting)

	if ready, blocked := w.Next(); len(ready)+len(blocked) != 0 {
		t.Fatalf("cycle members must never become ready")
	}

	err := w.Unresolvable()
	if err == nil {
		t.Fatal("expected unresolvable error")
	}
	if diff := cmp.Diff([]string{"a", "b", "waiting"}, err.Pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, err.Cycle); diff != "" {
		t.Errorf("cycle mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %q", err.Error())
	}

	var target *UnresolvableError
	if !errors.As(error(err), &target) {
		t.Error("expected errors.As to match UnresolvableError")
	}
}

func TestUnresolvableSelfCycle(t *testing.T) {
	fs := resource.NewMemoryFileSystem("build")
	self := newTask(fs, "self", []string{"build/self.out"}, "build/self.out")

	w := NewWorklist()
	w.Add(self)
	w.Next()

	err := w.Unresolvable()
	if err == nil || len(err.Cycle) != 1 {
		t.Fatalf("expected single-task cycle, got %v", err)
	}
}

func TestUnresolvableNothingPending(t *testing.T) {
	w := NewWorklist()
	if err := w.Unresolvable(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
