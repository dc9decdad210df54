package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/bob/internal/events"
)

// Task statuses shown in the list.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusBlocked   = "blocked"
)

// TaskState is what the pane knows about one executed or blocked task.
type TaskState struct {
	ID        string
	Builder   string
	Status    string
	Log       []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel lists tasks on the left and the selected task's log in a
// scrollable viewport on the right. Up-to-date tasks are not listed.
type TaskPaneModel struct {
	tasks        map[string]*TaskState
	taskOrder    []string
	selectedIdx  int
	failuresOnly bool
	viewport     viewport.Model
	width        int
	height       int
	focused      bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		visible := m.visibleTasks()
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(visible)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		case KeyFailures:
			m.failuresOnly = !m.failuresOnly
			m.selectedIdx = 0
			m.updateViewportContent()
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.BuildStartedEvent:
		m.tasks = make(map[string]*TaskState)
		m.taskOrder = nil
		m.selectedIdx = 0
		m.updateViewportContent()

	case events.TaskStartedEvent:
		task := m.add(msg.ID, StatusRunning, msg.Timestamp)
		task.Builder = msg.Builder
		task.Log = append(task.Log, fmt.Sprintf("[%s] building with %s", msg.Timestamp.Format(time.TimeOnly), msg.Builder))
		m.refresh(msg.ID)

	case events.TaskCompletedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = StatusCompleted
			task.Duration = msg.Duration
			if msg.Message != "" {
				task.Log = append(task.Log, msg.Message)
			}
			task.Log = append(task.Log, fmt.Sprintf("[Completed in %v]", msg.Duration.Round(time.Millisecond)))
			m.refresh(msg.ID)
		}

	case events.TaskFailedEvent:
		task := m.add(msg.ID, StatusFailed, msg.Timestamp)
		task.Status = StatusFailed
		task.Duration = msg.Duration
		task.Log = append(task.Log, strings.Split(fmt.Sprint(msg.Err), "\n")...)
		if msg.Fatal {
			task.Log = append(task.Log, "[Fatal: build aborted]")
		} else {
			task.Log = append(task.Log, "[Failed]")
		}
		m.refresh(msg.ID)

	case events.TaskBlockedEvent:
		task := m.add(msg.ID, StatusBlocked, msg.Timestamp)
		task.Log = append(task.Log, "Not built, waiting on inputs that failed:")
		for _, w := range msg.Waiting {
			task.Log = append(task.Log, "  "+w)
		}
		m.refresh(msg.ID)
	}

	return m, cmd
}

// add registers a task the first time it is seen and returns its state.
func (m *TaskPaneModel) add(id, status string, at time.Time) *TaskState {
	task, ok := m.tasks[id]
	if !ok {
		task = &TaskState{ID: id, Status: status, StartTime: at}
		m.tasks[id] = task
		m.taskOrder = append(m.taskOrder, id)
		if len(m.taskOrder) == 1 {
			m.selectedIdx = 0
		}
	}
	return task
}

// refresh redraws the viewport when id is the selected task.
func (m *TaskPaneModel) refresh(id string) {
	if m.SelectedTaskID() == id || len(m.taskOrder) == 1 {
		m.updateViewportContent()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := min(40, m.width/2)
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	label := "Tasks"
	if m.failuresOnly {
		label = "Failures"
	}
	title := StyleTitle.Render(label)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	visible := m.visibleTasks()
	if len(visible) == 0 {
		b.WriteString(StyleStatusPending.Render("Nothing to show yet..."))
	}
	for i, id := range visible {
		name := id
		if len(name) > width-3 && width > 6 {
			name = "..." + name[len(name)-(width-6):]
		}
		line := fmt.Sprintf("%s %s", StatusIcon(m.tasks[id].Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusBlocked:
		return StyleStatusBlocked.Render("⊘")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) visibleTasks() []string {
	if !m.failuresOnly {
		return m.taskOrder
	}
	var ids []string
	for _, id := range m.taskOrder {
		if s := m.tasks[id].Status; s == StatusFailed || s == StatusBlocked {
			ids = append(ids, id)
		}
	}
	return ids
}

// SelectedTaskID returns the ID of the selected task or "".
func (m TaskPaneModel) SelectedTaskID() string {
	visible := m.visibleTasks()
	if m.selectedIdx >= 0 && m.selectedIdx < len(visible) {
		return visible[m.selectedIdx]
	}
	return ""
}

// Task returns the state of id, if seen.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	task, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	listWidth := min(40, m.width/2)
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
