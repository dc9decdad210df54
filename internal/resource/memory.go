package resource

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryFileSystem keeps resources in a map. Used by tests and embedders that
// do not want to touch the disk.
type MemoryFileSystem struct {
	tree
	mem *memStore
}

// NewMemoryFileSystem creates an empty in-memory file system.
func NewMemoryFileSystem(buildDir string) *MemoryFileSystem {
	m := &MemoryFileSystem{mem: &memStore{files: make(map[string][]byte)}}
	m.tree = tree{buildDir: Clean(buildDir), store: m.mem}
	return m
}

func (m *MemoryFileSystem) Get(p string) Resource   { return m.get(p) }
func (m *MemoryFileSystem) RootDirectory() string  { return memRoot }
func (m *MemoryFileSystem) BuildDirectory() string { return m.buildDir }

// AddFile writes a file, typically a source, and returns its resource.
func (m *MemoryFileSystem) AddFile(p string, data []byte) Resource {
	r := m.get(p)
	_ = r.SetContent(data)
	return r
}

// Files returns every stored path in lexical order.
func (m *MemoryFileSystem) Files() []string {
	m.mem.mu.RLock()
	defer m.mem.mu.RUnlock()
	paths := make([]string, 0, len(m.mem.files))
	for p := range m.mem.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MemoryFileSystem) Walk(dir string, skip func(p string) bool, fn func(p string) error) error {
	dir = Clean(dir)
	for _, p := range m.Files() {
		if dir != "" && !strings.HasPrefix(p, dir+"/") {
			continue
		}
		if skip != nil && skippedByAncestor(p, skip) {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryFileSystem) RemoveAll(dir string) error {
	dir = Clean(dir)
	if dir == "" {
		return errors.New("refusing to remove the project root")
	}
	m.mem.mu.Lock()
	defer m.mem.mu.Unlock()
	for p := range m.mem.files {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			delete(m.mem.files, p)
		}
	}
	return nil
}

// skippedByAncestor mirrors directory pruning of a real walk: a file is skipped
// if skip matches it or any of its parent directories.
func skippedByAncestor(p string, skip func(string) bool) bool {
	parts := strings.Split(p, "/")
	for i := 1; i <= len(parts); i++ {
		if skip(strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

const memRoot = "/mem"

type memStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func (s *memStore) abs(p string) string { return memRoot + "/" + p }

func (s *memStore) read(p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[p]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memStore) write(p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) exists(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[p]
	return ok
}

func (s *memStore) remove(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, p)
	return nil
}
