// Package builders contains the concrete builders bob ships with and the
// bootstrap that registers them from configuration.
package builders

import (
	"errors"
	"fmt"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/resource"
)

// Copy writes its input unchanged to a single output.
type Copy struct {
	builder.Base
}

// NewCopy is the builder.Factory for Copy.
func NewCopy(host builder.Host, desc builder.Descriptor) builder.Builder {
	return &Copy{Base: builder.NewBase(host, desc)}
}

func (c *Copy) Create(input resource.Resource) (*builder.Task, error) {
	return c.DefaultTask(input), nil
}

func (c *Copy) Build(task *builder.Task) error {
	data, err := task.Input().Content()
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return &builder.CompileError{Resource: task.Input(), Message: "file not found", Err: err}
		}
		return err
	}
	for _, out := range task.Outputs {
		if err := out.SetContent(data); err != nil {
			return fmt.Errorf("copying %s: %w", task.Input().Path(), err)
		}
	}
	return nil
}
