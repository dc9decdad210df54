package tui

import "github.com/charmbracelet/lipgloss"

// Palette, as ANSI 256 codes or names.
const (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorHelp   = lipgloss.Color("241")
	colorOK     = lipgloss.Color("green")
	colorFail   = lipgloss.Color("red")
	colorBusy   = lipgloss.Color("yellow")
	colorBlock  = lipgloss.Color("208")
)

func paneBorder(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}

func statusText(c lipgloss.Color, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(bold)
}

var (
	StyleFocusedBorder   = paneBorder(colorAccent)
	StyleUnfocusedBorder = paneBorder(colorMuted)

	// Task states; pending also renders skipped and idle counters.
	StyleStatusRunning  = statusText(colorBusy, true)
	StyleStatusComplete = statusText(colorOK, true)
	StyleStatusFailed   = statusText(colorFail, true)
	StyleStatusBlocked  = statusText(colorBlock, false)
	StyleStatusPending  = statusText(colorMuted, false)

	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp     = lipgloss.NewStyle().Foreground(colorHelp)
	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
)
