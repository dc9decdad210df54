// Package project discovers sources, creates tasks through the registered
// builders and runs incremental builds over them.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"sort"
	"sync"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/events"
	"github.com/aristath/bob/internal/persistence"
	"github.com/aristath/bob/internal/resource"
	"github.com/aristath/bob/internal/scheduler"
)

// DefaultConcurrency bounds the tasks executed in parallel per wave.
const DefaultConcurrency = 4

// Config configures a Project.
type Config struct {
	Concurrency int               // Max concurrent tasks per wave (default 4)
	Exclude     []string          // Directory names skipped during source discovery
	Options     map[string]string // Project options, visible to builders and folded into signatures
	Logger      *slog.Logger      // Defaults to slog.Default()
	Bus         *events.EventBus  // Optional; nil disables events
	History     persistence.Store // Optional; nil disables history
	Command     string            // Recorded with history entries
}

// Project owns one build tree. It implements builder.Host for the builders
// it instantiates. Builds on the same Project must not overlap.
type Project struct {
	fs     resource.FileSystem
	reg    *builder.Registry
	cfg    Config
	logger *slog.Logger
	locks  *scheduler.ResourceLockManager

	mu         sync.Mutex
	sources    []string
	builders   map[string]builder.Builder // By input extension
	tasks      map[string]*builder.Task   // By input path
	order      []*builder.Task            // Creation order
	building   bool
	discovered []*builder.Task // Created while building, not yet scheduled
}

// New creates a project over fs using the builders in reg.
func New(fs resource.FileSystem, reg *builder.Registry, cfg Config) *Project {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options == nil {
		cfg.Options = map[string]string{}
	}
	p := &Project{
		fs:     fs,
		reg:    reg,
		cfg:    cfg,
		logger: cfg.Logger,
		locks:  scheduler.NewResourceLockManager(),
	}
	p.reset()
	return p
}

func (p *Project) FileSystem() resource.FileSystem { return p.fs }
func (p *Project) Logger() *slog.Logger            { return p.logger }

func (p *Project) Options() map[string]string {
	return maps.Clone(p.cfg.Options)
}

func (p *Project) Option(key string) string {
	return p.cfg.Options[key]
}

func (p *Project) Sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sources...)
}

// Tasks returns every task created so far, in creation order.
func (p *Project) Tasks() []*builder.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*builder.Task(nil), p.order...)
}

// reset drops the tasks of a previous invocation. Tasks are never reused
// between builds.
func (p *Project) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.builders = make(map[string]builder.Builder)
	p.tasks = make(map[string]*builder.Task)
	p.order = nil
	p.discovered = nil
}

// FindSources walks the project root and records every file outside the
// build directory and excluded directories. Files without a builder stay
// visible through Sources, for collectors, but get no task.
func (p *Project) FindSources() ([]string, error) {
	exclude := make(map[string]bool, len(p.cfg.Exclude))
	for _, name := range p.cfg.Exclude {
		exclude[name] = true
	}
	buildDir := p.fs.BuildDirectory()

	skip := func(rel string) bool {
		return rel == buildDir || exclude[path.Base(rel)]
	}

	var sources []string
	unknown := make(map[string]int)
	err := p.fs.Walk("", skip, func(rel string) error {
		sources = append(sources, rel)
		if _, ok := p.reg.LookupPath(rel); !ok {
			unknown[resource.Ext(rel)]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finding sources: %w", err)
	}

	for _, ext := range sortedKeys(unknown) {
		p.logger.Warn("no builder for extension, files ignored", "ext", ext, "files", unknown[ext])
	}

	p.mu.Lock()
	p.sources = sources
	p.mu.Unlock()
	return append([]string(nil), sources...), nil
}

// BuildResource implements builder.Host.
func (p *Project) BuildResource(input resource.Resource) (*builder.Task, error) {
	key := input.Path()

	p.mu.Lock()
	if t, ok := p.tasks[key]; ok {
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()

	reg, ok := p.reg.LookupPath(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", builder.ErrNoBuilder, key)
	}
	b := p.builderFor(resource.Ext(key), reg)

	// Create runs unlocked: collectors call back into BuildResource.
	t, err := b.Create(input)
	if err != nil {
		var configErr *builder.ConfigError
		if errors.As(err, &configErr) {
			return nil, err
		}
		return nil, &builder.ConfigError{Resource: input, Err: err}
	}
	if t.Builder == nil {
		t.Builder = b
	}
	if t.Options == nil {
		t.Options = maps.Clone(p.cfg.Options)
	}
	if err := t.Validate(); err != nil {
		return nil, &builder.ConfigError{Resource: input, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.tasks[key]; ok {
		return existing, nil
	}
	p.tasks[key] = t
	p.order = append(p.order, t)
	if p.building {
		p.discovered = append(p.discovered, t)
	}
	return t, nil
}

func (p *Project) builderFor(ext string, reg builder.Registration) builder.Builder {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.builders[ext]
	if !ok {
		b = reg.Factory(p, reg.Descriptor)
		p.builders[ext] = b
	}
	return b
}

// createTasks creates a task for every source with a builder. Builders with
// a lower CreateOrder go first; ties keep path order.
func (p *Project) createTasks() ([]*builder.Task, error) {
	type candidate struct {
		path  string
		order int
	}
	var candidates []candidate
	for _, src := range p.Sources() {
		if reg, ok := p.reg.LookupPath(src); ok {
			candidates = append(candidates, candidate{src, reg.Descriptor.CreateOrder})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].order < candidates[j].order
	})

	for _, c := range candidates {
		if _, err := p.BuildResource(p.fs.Get(c.path)); err != nil {
			return nil, err
		}
	}
	return p.Tasks(), nil
}

func (p *Project) setBuilding(building bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.building = building
	p.discovered = nil
}

// takeDiscovered returns and clears the tasks created since the last call.
func (p *Project) takeDiscovered() []*builder.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	tasks := p.discovered
	p.discovered = nil
	return tasks
}

// prepare discovers sources and creates the initial task set.
func (p *Project) prepare() ([]*builder.Task, error) {
	p.reset()
	if _, err := p.FindSources(); err != nil {
		return nil, err
	}
	return p.createTasks()
}

// Resolve creates, without running, the task that would build rel.
func (p *Project) Resolve(rel string) (*builder.Task, builder.Descriptor, error) {
	p.reset()
	if _, err := p.FindSources(); err != nil {
		return nil, builder.Descriptor{}, err
	}
	rel = resource.Clean(rel)
	reg, ok := p.reg.LookupPath(rel)
	if !ok {
		return nil, builder.Descriptor{}, fmt.Errorf("%w: %s", builder.ErrNoBuilder, rel)
	}
	t, err := p.BuildResource(p.fs.Get(rel))
	if err != nil {
		return nil, reg.Descriptor, err
	}
	return t, reg.Descriptor, nil
}

// Clean removes every output declared by the tasks created for the current
// sources. State is left alone: a later build sees the outputs missing and
// rebuilds them. Tasks that would only be discovered while building are not
// known here, so their outputs survive.
func (p *Project) Clean(ctx context.Context) ([]string, error) {
	tasks, err := p.prepare()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		for _, out := range t.Outputs {
			if !out.Exists() {
				continue
			}
			if err := out.Remove(); err != nil {
				return removed, err
			}
			removed = append(removed, out.Path())
		}
	}
	p.logger.Info("clean finished", "removed", len(removed))
	return removed, nil
}

// Distclean deletes the build directory, state and history included.
func (p *Project) Distclean() error {
	if err := p.fs.RemoveAll(p.fs.BuildDirectory()); err != nil {
		return fmt.Errorf("removing build directory: %w", err)
	}
	p.logger.Info("build directory removed", "path", p.fs.BuildDirectory())
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
