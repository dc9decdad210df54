// Package resource defines the addressable content units the build operates
// on and the file systems that resolve them.
package resource

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrNotFound is returned when reading a resource that has no content.
var ErrNotFound = errors.New("resource not found")

// Resource is a source file or build output addressed by a root-relative path.
type Resource interface {
	// Path returns the slash-separated path relative to the project root.
	Path() string
	// AbsPath returns the absolute location of the resource.
	AbsPath() string
	// Content reads the resource. Fails with ErrNotFound if it does not exist.
	Content() ([]byte, error)
	// SetContent writes the resource, creating parent directories as needed.
	SetContent(data []byte) error
	Exists() bool
	// Digest returns the blake3-256 digest of the content.
	Digest() ([]byte, error)
	Remove() error
	// IsOutput reports whether the resource lives in the build directory.
	IsOutput() bool
	// Output maps the resource into the build directory.
	Output() Resource
	// ChangeExt returns the output resource with its extension replaced.
	ChangeExt(ext string) Resource
	// Resolve looks up a path relative to this resource's directory.
	// Paths starting with "/" are resolved from the project root.
	Resolve(rel string) Resource
}

// FileSystem resolves paths to resources and owns the root and build directories.
type FileSystem interface {
	Get(p string) Resource
	RootDirectory() string
	// BuildDirectory returns the build directory relative to the root.
	BuildDirectory() string
	// Walk calls fn for every file below dir in lexical order. Directories for
	// which skip returns true are not descended into.
	Walk(dir string, skip func(p string) bool, fn func(p string) error) error
	// RemoveAll deletes dir and everything below it.
	RemoveAll(dir string) error
}

// DigestBytes returns the blake3-256 digest of data.
func DigestBytes(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Ext returns the extension of p including the leading dot.
func Ext(p string) string {
	return path.Ext(p)
}

// Clean normalizes p to a root-relative slash path.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// backend is the storage a fileResource delegates to.
type backend interface {
	read(p string) ([]byte, error)
	write(p string, data []byte) error
	exists(p string) bool
	remove(p string) error
	abs(p string) string
}

// tree holds what disk and memory file systems share.
type tree struct {
	buildDir string
	store    backend
}

func (t *tree) get(p string) Resource {
	return &fileResource{tree: t, path: Clean(p)}
}

func (t *tree) isOutput(p string) bool {
	return p == t.buildDir || strings.HasPrefix(p, t.buildDir+"/")
}

type fileResource struct {
	tree *tree
	path string
}

func (r *fileResource) Path() string    { return r.path }
func (r *fileResource) AbsPath() string { return r.tree.store.abs(r.path) }
func (r *fileResource) Exists() bool    { return r.tree.store.exists(r.path) }
func (r *fileResource) IsOutput() bool  { return r.tree.isOutput(r.path) }
func (r *fileResource) String() string  { return r.path }

func (r *fileResource) Content() ([]byte, error) {
	data, err := r.tree.store.read(r.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.path, err)
	}
	return data, nil
}

func (r *fileResource) SetContent(data []byte) error {
	if err := r.tree.store.write(r.path, data); err != nil {
		return fmt.Errorf("writing %s: %w", r.path, err)
	}
	return nil
}

func (r *fileResource) Digest() ([]byte, error) {
	data, err := r.Content()
	if err != nil {
		return nil, err
	}
	return DigestBytes(data), nil
}

func (r *fileResource) Remove() error {
	if err := r.tree.store.remove(r.path); err != nil {
		return fmt.Errorf("removing %s: %w", r.path, err)
	}
	return nil
}

func (r *fileResource) Output() Resource {
	if r.IsOutput() {
		return r
	}
	return r.tree.get(path.Join(r.tree.buildDir, r.path))
}

func (r *fileResource) ChangeExt(ext string) Resource {
	base := strings.TrimSuffix(r.path, path.Ext(r.path))
	return r.tree.get(base + ext).Output()
}

func (r *fileResource) Resolve(rel string) Resource {
	if strings.HasPrefix(rel, "/") {
		return r.tree.get(rel)
	}
	return r.tree.get(path.Join(path.Dir(r.path), rel))
}
