package builder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/zeebo/blake3"

	"github.com/aristath/bob/internal/resource"
)

// Task is one unit of scheduled work. Tasks are created fresh for every build
// invocation and never persisted.
type Task struct {
	Name         string
	Inputs       []resource.Resource
	Outputs      []resource.Resource
	Dependencies []resource.Resource // Folded into the signature only
	Options      map[string]string
	Data         any // Builder-defined payload
	Builder      Builder

	sigOnce   sync.Once
	signature []byte
	sigErr    error
}

// AddInput appends input resources.
func (t *Task) AddInput(rs ...resource.Resource) { t.Inputs = append(t.Inputs, rs...) }

// AddOutput appends output resources.
func (t *Task) AddOutput(rs ...resource.Resource) { t.Outputs = append(t.Outputs, rs...) }

// AddDependency appends resources that affect the signature without being inputs.
func (t *Task) AddDependency(rs ...resource.Resource) {
	t.Dependencies = append(t.Dependencies, rs...)
}

// Input returns the first input or nil.
func (t *Task) Input() resource.Resource {
	if len(t.Inputs) == 0 {
		return nil
	}
	return t.Inputs[0]
}

// OutputPaths returns the paths of all outputs.
func (t *Task) OutputPaths() []string {
	paths := make([]string, len(t.Outputs))
	for i, o := range t.Outputs {
		paths[i] = o.Path()
	}
	return paths
}

func (t *Task) String() string {
	if t.Name != "" {
		return t.Name
	}
	return strings.Join(t.OutputPaths(), ",")
}

// Validate checks the structural invariants of a freshly created task.
func (t *Task) Validate() error {
	if len(t.Outputs) == 0 {
		return fmt.Errorf("task %s declares no outputs", t)
	}
	for _, o := range t.Outputs {
		if !o.IsOutput() {
			return fmt.Errorf("task %s: output %s is outside the build directory", t, o.Path())
		}
	}
	return nil
}

// Signature returns the digest over the input digests, dependency digests,
// builder contribution and options. It is computed once per task. A missing
// input or dependency yields a *CompileError attributed to that resource.
func (t *Task) Signature() ([]byte, error) {
	t.sigOnce.Do(func() {
		t.signature, t.sigErr = t.computeSignature()
	})
	return t.signature, t.sigErr
}

func (t *Task) computeSignature() ([]byte, error) {
	h := blake3.New()

	// Fields are length-prefixed so adjacent values cannot run together.
	writeField := func(data []byte) {
		var prefix [8]byte
		binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
		h.Write(prefix[:])
		h.Write(data)
	}

	digestAll := func(rs []resource.Resource) error {
		writeField(binary.BigEndian.AppendUint64(nil, uint64(len(rs))))
		for _, r := range rs {
			d, err := r.Digest()
			if err != nil {
				if errors.Is(err, resource.ErrNotFound) {
					return &CompileError{Resource: r, Message: "file not found", Err: err}
				}
				return fmt.Errorf("digesting %s: %w", r.Path(), err)
			}
			writeField(d)
		}
		return nil
	}

	if err := digestAll(t.Inputs); err != nil {
		return nil, err
	}
	if err := digestAll(t.Dependencies); err != nil {
		return nil, err
	}

	var contribution bytes.Buffer
	if c, ok := t.Builder.(SignatureContributor); ok {
		c.ContributeSignature(&contribution)
	}
	writeField(contribution.Bytes())

	opts := t.Options
	if opts == nil {
		opts = map[string]string{}
	}
	optHash, err := hashstructure.Hash(opts, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, fmt.Errorf("hashing options of %s: %w", t, err)
	}
	writeField(binary.BigEndian.AppendUint64(nil, optHash))

	return h.Sum(nil), nil
}
