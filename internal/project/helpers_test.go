package project

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/resource"
)

// recorder collects the sources a test builder was asked to build.
type recorder struct {
	mu    sync.Mutex
	built []string
}

func (r *recorder) record(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = append(r.built, p)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.built...)
}

type buildFunc func(host builder.Host, t *builder.Task) error
type createFunc func(base builder.Base, input resource.Resource) (*builder.Task, error)

// funcBuilder is a configurable builder. Without a build function it writes
// "built:" followed by the concatenated inputs to every output.
type funcBuilder struct {
	builder.Base
	rec    *recorder
	create createFunc
	build  buildFunc
}

func (b *funcBuilder) Create(input resource.Resource) (*builder.Task, error) {
	if b.create != nil {
		return b.create(b.Base, input)
	}
	return b.DefaultTask(input), nil
}

func (b *funcBuilder) Build(t *builder.Task) error {
	b.rec.record(strings.TrimPrefix(t.Name, b.Descriptor().Name+" "))
	if b.build != nil {
		return b.build(b.Host(), t)
	}
	return transform(t)
}

func transform(t *builder.Task) error {
	var buf bytes.Buffer
	buf.WriteString("built:")
	for _, in := range t.Inputs {
		data, err := in.Content()
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	for _, out := range t.Outputs {
		if err := out.SetContent(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

type builderDef struct {
	desc   builder.Descriptor
	create createFunc
	build  buildFunc
}

func register(t *testing.T, reg *builder.Registry, def builderDef) *recorder {
	t.Helper()
	rec := &recorder{}
	factory := func(host builder.Host, desc builder.Descriptor) builder.Builder {
		return &funcBuilder{Base: builder.NewBase(host, desc), rec: rec, create: def.create, build: def.build}
	}
	if err := reg.Register(def.desc, factory); err != nil {
		t.Fatalf("registering %s: %v", def.desc.Name, err)
	}
	return rec
}

// packCreate builds a collector task: the input lists source paths, one per
// line, and the task consumes the outputs of their tasks.
func packCreate(base builder.Base, input resource.Resource) (*builder.Task, error) {
	data, err := input.Content()
	if err != nil {
		return nil, err
	}
	t := base.DefaultTask(input)
	t.Inputs = nil
	t.AddDependency(input)
	for _, line := range strings.Fields(string(data)) {
		producer, err := base.Host().BuildResource(base.Host().FileSystem().Get(line))
		if err != nil {
			return nil, err
		}
		t.AddInput(producer.Outputs...)
	}
	return t, nil
}

func fooDef() builderDef {
	return builderDef{desc: builder.Descriptor{Name: "foo", OutExt: ".bar", InExts: []string{".foo"}}}
}

func packDef() builderDef {
	return builderDef{
		desc:   builder.Descriptor{Name: "pack", OutExt: ".packed", InExts: []string{".pack"}, CreateOrder: 10},
		create: packCreate,
	}
}

func newTestProject(t *testing.T, fs resource.FileSystem, reg *builder.Registry, mutate ...func(*Config)) *Project {
	t.Helper()
	cfg := Config{Exclude: []string{".git"}}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(fs, reg, cfg)
}

func summarize(results []builder.TaskResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		status := "OK"
		if !r.OK() {
			status = "FAIL"
		}
		out[i] = status + " " + r.Task.String()
	}
	return out
}

func content(t *testing.T, fs resource.FileSystem, p string) string {
	t.Helper()
	data, err := fs.Get(p).Content()
	if err != nil {
		t.Fatalf("reading %s: %v", p, err)
	}
	return string(data)
}
