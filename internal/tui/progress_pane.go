package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/bob/internal/events"
)

// ProgressPaneModel shows build-wide counters and the progress bar.
type ProgressPaneModel struct {
	total     int
	worked    int
	phase     string
	running   int
	completed int
	skipped   int
	failed    int
	blocked   int
	finished  bool
	duration  time.Duration
	err       error
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.BuildStartedEvent:
		m = ProgressPaneModel{width: m.width, height: m.height, focused: m.focused, total: msg.Tasks}

	case events.BuildProgressEvent:
		m.phase = msg.Name
		m.total = msg.Total
		m.worked = msg.Worked

	case events.TaskStartedEvent:
		m.running++

	case events.TaskSkippedEvent:
		m.skipped++

	case events.TaskCompletedEvent:
		m.running = max(m.running-1, 0)
		m.completed++

	case events.TaskFailedEvent:
		m.running = max(m.running-1, 0)
		m.failed++

	case events.TaskBlockedEvent:
		m.blocked++

	case events.BuildFinishedEvent:
		m.finished = true
		m.running = 0
		m.duration = msg.Duration
		m.err = msg.Err
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Build Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Tasks:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Built:     %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Up to date: %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.skipped))))

	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-16, 40)
		doneWidth := (m.worked * barWidth) / m.total
		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, doneWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, barWidth-doneWidth)))
		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.worked, m.total))
	}

	if m.finished {
		b.WriteString("\n")
		switch {
		case m.err != nil:
			b.WriteString(StyleStatusFailed.Render("Build stopped: " + m.err.Error()))
		case m.failed > 0:
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Build finished with %d failures in %v", m.failed, m.duration.Round(time.Millisecond))))
		default:
			b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Build succeeded in %v", m.duration.Round(time.Millisecond))))
		}
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// Finished reports whether the build-finished event has been seen.
func (m ProgressPaneModel) Finished() bool { return m.finished }

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
