// Package tui renders a live build dashboard fed by the event bus.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/bob/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// BuildDoneMsg is delivered when the build function returns.
type BuildDoneMsg struct {
	Err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	title        string
	width        int
	height       int
	quitting     bool
	done         bool
	buildErr     error
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, title string) Model {
	m := Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(1024),
		title:        title,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case BuildDoneMsg:
		m.done = true
		m.buildErr = msg.Err

	case events.Event:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := StyleTitle.Render(m.title)
	if m.done {
		status := StyleStatusComplete.Render("done")
		if m.buildErr != nil {
			status = StyleStatusFailed.Render(fmt.Sprintf("error: %v", m.buildErr))
		}
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", status)
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView(m.done))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // header and help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}

// Run shows the dashboard while build runs. Quitting the dashboard cancels
// the context passed to build; Run returns once build has returned.
func Run(ctx context.Context, bus *events.EventBus, title string, build func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(bus, title), tea.WithAltScreen(), tea.WithContext(ctx))

	buildErr := make(chan error, 1)
	go func() {
		err := build(ctx)
		buildErr <- err
		p.Send(BuildDoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	cancel()
	err := <-buildErr

	if runErr != nil && err == nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running dashboard: %w", runErr)
	}
	return err
}
