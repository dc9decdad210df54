// Package builder defines the Builder capability, the registry that maps file
// extensions to builders, and the Task a builder creates and executes.
package builder

import (
	"io"
	"log/slog"

	"github.com/aristath/bob/internal/resource"
)

// Builder creates a Task for an input resource and later executes it.
type Builder interface {
	// Create returns the task that turns input into outputs.
	Create(input resource.Resource) (*Task, error)

	// Build executes the task. It must SetContent every declared output.
	// Return a *CompileError or *MultipleCompileError for problems attributable
	// to an input; any other error aborts the whole build.
	Build(task *Task) error
}

// SignatureContributor is implemented by builders that fold extra state, such
// as a tool version or command line, into task signatures.
type SignatureContributor interface {
	ContributeSignature(w io.Writer)
}

// Factory instantiates a builder bound to a project.
type Factory func(host Host, desc Descriptor) Builder

// Host is the part of the project a builder can see.
type Host interface {
	FileSystem() resource.FileSystem
	Options() map[string]string
	Option(key string) string
	// Sources returns the root-relative paths of every discovered source file.
	Sources() []string
	// BuildResource returns the task for input, creating and scheduling it if
	// no task exists yet. Tasks registered while a build is running join the
	// next scheduling pass.
	BuildResource(input resource.Resource) (*Task, error)
	Logger() *slog.Logger
}

// Base carries the host and descriptor. Builders embed it.
type Base struct {
	host Host
	desc Descriptor
}

// NewBase binds a builder to its host and descriptor.
func NewBase(host Host, desc Descriptor) Base {
	return Base{host: host, desc: desc}
}

func (b Base) Host() Host             { return b.host }
func (b Base) Descriptor() Descriptor { return b.desc }

// DefaultTask creates a one input, one output task. The output is the input
// moved to the build directory with the descriptor's OutExt.
func (b Base) DefaultTask(input resource.Resource) *Task {
	t := &Task{Name: b.desc.Name + " " + input.Path()}
	t.AddInput(input)
	t.AddOutput(input.ChangeExt(b.desc.OutExt))
	return t
}
