package tui

import "strings"

// Global keys.
const (
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyPane1    = "1"
	KeyPane2    = "2"
)

// Task pane keys.
const (
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyFailures = "f"
)

var helpBindings = [][2]string{
	{"Tab", "cycle focus"},
	{"1/2", "jump to pane"},
	{"j/k", "select task"},
	{"f", "failures only"},
	{"q", "quit"},
}

// HelpView renders the help bar. While the build runs, quitting cancels it.
func HelpView(finished bool) string {
	parts := make([]string, len(helpBindings))
	for i, b := range helpBindings {
		parts[i] = b[0] + ": " + b[1]
	}
	help := strings.Join(parts, " | ")
	if !finished {
		help += " (cancels build)"
	}
	return StyleHelp.Render(help)
}
