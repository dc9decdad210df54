package builder

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/bob/internal/resource"
)

// ErrNoBuilder is returned when no builder is registered for a resource's extension.
var ErrNoBuilder = errors.New("no builder registered")

// Descriptor is the declarative metadata attached to a builder at registration.
type Descriptor struct {
	Name   string
	OutExt string
	InExts []string
	// CreateOrder delays task creation: builders with a higher order create
	// their tasks after every builder with a lower order.
	CreateOrder int
}

// Registration pairs a descriptor with the factory producing the builder.
type Registration struct {
	Descriptor Descriptor
	Factory    Factory
}

// Registry maps input extensions to builder registrations. It is populated
// once per project and read-only afterwards.
type Registry struct {
	byExt map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Registration)}
}

// Register maps every extension of desc.InExts to factory.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.Name == "" {
		return errors.New("builder descriptor has no name")
	}
	if len(desc.InExts) == 0 {
		return fmt.Errorf("builder %q declares no input extensions", desc.Name)
	}
	if factory == nil {
		return fmt.Errorf("builder %q has no factory", desc.Name)
	}

	for _, ext := range desc.InExts {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("builder %q: extension %q must start with a dot", desc.Name, ext)
		}
		if existing, ok := r.byExt[ext]; ok {
			return fmt.Errorf("extension %q already handled by builder %q", ext, existing.Descriptor.Name)
		}
	}

	reg := Registration{Descriptor: desc, Factory: factory}
	for _, ext := range desc.InExts {
		r.byExt[ext] = reg
	}
	return nil
}

// Lookup returns the registration for an extension such as ".png".
func (r *Registry) Lookup(ext string) (Registration, bool) {
	reg, ok := r.byExt[ext]
	return reg, ok
}

// LookupPath returns the registration for the extension of p.
func (r *Registry) LookupPath(p string) (Registration, bool) {
	return r.Lookup(resource.Ext(p))
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
