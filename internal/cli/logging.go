package cli

import (
	"fmt"
	"io"
	"log/slog"
)

// newLogger returns a structured logger writing to w. Without -v only
// warnings and errors are shown.
func newLogger(w io.Writer, format string, verbosity int) (*slog.Logger, error) {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}
