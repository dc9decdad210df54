package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// DiskFileSystem resolves resources below a directory on disk.
type DiskFileSystem struct {
	tree
	root string
}

// NewDiskFileSystem creates a file system rooted at root. buildDir is relative
// to root.
func NewDiskFileSystem(root, buildDir string) (*DiskFileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	buildDir = Clean(buildDir)
	if buildDir == "" {
		return nil, errors.New("build directory must not be the project root")
	}
	d := &DiskFileSystem{root: abs}
	d.tree = tree{buildDir: buildDir, store: diskStore{root: abs}}
	return d, nil
}

func (d *DiskFileSystem) Get(p string) Resource   { return d.get(p) }
func (d *DiskFileSystem) RootDirectory() string  { return d.root }
func (d *DiskFileSystem) BuildDirectory() string { return d.buildDir }

func (d *DiskFileSystem) Walk(dir string, skip func(p string) bool, fn func(p string) error) error {
	start := filepath.Join(d.root, filepath.FromSlash(Clean(dir)))
	return filepath.WalkDir(start, func(abs string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.root, abs)
		if err != nil {
			return err
		}
		p := Clean(filepath.ToSlash(rel))
		if entry.IsDir() {
			if p != "" && skip != nil && skip(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if skip != nil && skip(p) {
			return nil
		}
		return fn(p)
	})
}

func (d *DiskFileSystem) RemoveAll(dir string) error {
	target := filepath.Join(d.root, filepath.FromSlash(Clean(dir)))
	if target == d.root {
		return errors.New("refusing to remove the project root")
	}
	return os.RemoveAll(target)
}

type diskStore struct {
	root string
}

func (s diskStore) abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s diskStore) read(p string) ([]byte, error) {
	data, err := os.ReadFile(s.abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// write replaces the file atomically via a temp file in the same directory.
func (s diskStore) write(p string, data []byte) error {
	target := s.abs(p)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+path.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s diskStore) exists(p string) bool {
	info, err := os.Stat(s.abs(p))
	return err == nil && !info.IsDir()
}

func (s diskStore) remove(p string) error {
	err := os.Remove(s.abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
