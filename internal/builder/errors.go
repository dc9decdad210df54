package builder

import (
	"fmt"
	"strings"

	"github.com/aristath/bob/internal/resource"
)

// CompileError is a problem attributable to one resource and, optionally, a
// line. The scheduler records it and keeps building unrelated tasks.
type CompileError struct {
	Resource resource.Resource
	Line     int // 0 when unknown
	Message  string
	Err      error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.Resource != nil {
		b.WriteString(e.Resource.Path())
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Severity classifies a diagnostic issue.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps compiler wording to a Severity. Unknown words are errors.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "note", "remark":
		return SeverityInfo
	case "warning", "warn":
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Issue is one diagnostic produced by a builder.
type Issue struct {
	Severity Severity
	Resource resource.Resource
	Message  string
	Line     int
}

func (i Issue) String() string {
	loc := ""
	if i.Resource != nil {
		loc = i.Resource.Path()
		if i.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, i.Line)
		}
		loc += ": "
	}
	return fmt.Sprintf("%s%s: %s", loc, i.Severity, i.Message)
}

// MultipleCompileError aggregates diagnostics, typically from an external
// compiler. Only error-severity issues fail the owning task.
type MultipleCompileError struct {
	ContextResource resource.Resource
	Issues          []Issue
	RawLog          string
}

// Add appends an issue.
func (e *MultipleCompileError) Add(sev Severity, r resource.Resource, line int, msg string) {
	if line < 0 {
		line = 0
	}
	e.Issues = append(e.Issues, Issue{Severity: sev, Resource: r, Line: line, Message: msg})
}

// HasErrors reports whether any issue has error severity.
func (e *MultipleCompileError) HasErrors() bool {
	return e.FirstError() != nil
}

// FirstError returns the first error-severity issue or nil.
func (e *MultipleCompileError) FirstError() *Issue {
	for i := range e.Issues {
		if e.Issues[i].Severity == SeverityError {
			return &e.Issues[i]
		}
	}
	return nil
}

func (e *MultipleCompileError) Error() string {
	var errs []string
	for _, issue := range e.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue.String())
		}
	}
	if len(errs) == 0 {
		return fmt.Sprintf("%d diagnostics, no errors", len(e.Issues))
	}
	return strings.Join(errs, "\n")
}

// ConfigError reports that a builder could not create a task for a resource,
// for example because a referenced project file is malformed.
type ConfigError struct {
	Resource resource.Resource
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Resource == nil {
		return fmt.Sprintf("build configuration: %v", e.Err)
	}
	return fmt.Sprintf("build configuration for %s: %v", e.Resource.Path(), e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
