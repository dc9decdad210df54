package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicBuild = "build"
)

// Event type constants
const (
	EventTypeBuildStarted  = "build.started"
	EventTypeBuildProgress = "build.progress"
	EventTypeBuildFinished = "build.finished"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskSkipped   = "task.skipped"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskBlocked   = "task.blocked"
)

// BuildStartedEvent is published once the initial task set is created.
type BuildStartedEvent struct {
	Tasks     int
	Timestamp time.Time
}

func (e BuildStartedEvent) EventType() string { return EventTypeBuildStarted }
func (e BuildStartedEvent) TaskID() string    { return "" }

// BuildProgressEvent reports units of work done out of Total for the named step.
type BuildProgressEvent struct {
	Name      string
	Total     int
	Worked    int
	Timestamp time.Time
}

func (e BuildProgressEvent) EventType() string { return EventTypeBuildProgress }
func (e BuildProgressEvent) TaskID() string    { return "" }

// BuildFinishedEvent is published after state has been saved.
type BuildFinishedEvent struct {
	Executed  int
	Failed    int
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e BuildFinishedEvent) EventType() string { return EventTypeBuildFinished }
func (e BuildFinishedEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when a task's builder is invoked.
type TaskStartedEvent struct {
	ID        string
	Builder   string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task's outputs are up to date.
type TaskSkippedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task builds successfully.
type TaskCompletedEvent struct {
	ID        string
	Message   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails. Fatal failures abort the build.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Fatal     bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published for a task that was not run because the
// producer of one of its inputs failed.
type TaskBlockedEvent struct {
	ID        string
	Waiting   []string // Failed inputs
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }
