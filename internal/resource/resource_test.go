package resource

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResourcePaths(t *testing.T) {
	fs := NewMemoryFileSystem("build/default")

	tests := []struct {
		name       string
		got        Resource
		wantPath   string
		wantOutput bool
	}{
		{"source", fs.Get("art/hero.png"), "art/hero.png", false},
		{"cleaned", fs.Get("/art/../art/./hero.png"), "art/hero.png", false},
		{"output", fs.Get("art/hero.png").Output(), "build/default/art/hero.png", true},
		{"output of output", fs.Get("build/default/x.bin").Output(), "build/default/x.bin", true},
		{"change ext", fs.Get("art/hero.png").ChangeExt(".texturec"), "build/default/art/hero.texturec", true},
		{"resolve sibling", fs.Get("art/hero.png").Resolve("hero.atlas"), "art/hero.atlas", false},
		{"resolve rooted", fs.Get("art/hero.png").Resolve("/main/main.collection"), "main/main.collection", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Path() != tt.wantPath {
				t.Errorf("Path() = %q, want %q", tt.got.Path(), tt.wantPath)
			}
			if tt.got.IsOutput() != tt.wantOutput {
				t.Errorf("IsOutput() = %v, want %v", tt.got.IsOutput(), tt.wantOutput)
			}
		})
	}
}

func TestMemoryContentAndDigest(t *testing.T) {
	fs := NewMemoryFileSystem("build")
	r := fs.Get("a.foo")

	if r.Exists() {
		t.Fatal("expected resource to not exist yet")
	}
	if _, err := r.Content(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := r.SetContent([]byte("hello")); err != nil {
		t.Fatalf("SetContent failed: %v", err)
	}
	d1, err := r.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if !bytes.Equal(d1, DigestBytes([]byte("hello"))) {
		t.Error("digest does not match content digest")
	}

	_ = r.SetContent([]byte("hellp"))
	d2, _ := r.Digest()
	if bytes.Equal(d1, d2) {
		t.Error("expected digest to change with content")
	}

	if err := r.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if r.Exists() {
		t.Error("expected resource to be removed")
	}
}

func TestMemoryWalkSkipsDirectories(t *testing.T) {
	fs := NewMemoryFileSystem("build")
	fs.AddFile("a.foo", nil)
	fs.AddFile(".git/config", nil)
	fs.AddFile("sub/b.foo", nil)
	fs.AddFile("build/a.bar", nil)

	var got []string
	err := fs.Walk("", func(p string) bool {
		return p == ".git" || p == "build"
	}, func(p string) error {
		got = append(got, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"a.foo", "sub/b.foo"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Walk mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRemoveAll(t *testing.T) {
	fs := NewMemoryFileSystem("build")
	fs.AddFile("a.foo", nil)
	fs.AddFile("build/a.bar", nil)
	fs.AddFile("build/sub/b.bar", nil)

	if err := fs.RemoveAll("build"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.foo"}, fs.Files()); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if err := fs.RemoveAll(""); err == nil {
		t.Error("expected error removing the root")
	}
}

func TestDiskFileSystem(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.foo"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0644); err != nil {
		t.Fatal(err)
	}

	fs, err := NewDiskFileSystem(root, "build/default")
	if err != nil {
		t.Fatalf("NewDiskFileSystem failed: %v", err)
	}

	src := fs.Get("a.foo")
	data, err := src.Content()
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("Content = %q, want %q", data, "abc")
	}

	out := src.ChangeExt(".bar")
	if err := out.SetContent([]byte("compiled")); err != nil {
		t.Fatalf("SetContent failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "build", "default", "a.bar")); err != nil {
		t.Fatalf("expected output on disk: %v", err)
	}
	if out.AbsPath() != filepath.Join(root, "build", "default", "a.bar") {
		t.Errorf("AbsPath = %q", out.AbsPath())
	}

	var walked []string
	err = fs.Walk("", func(p string) bool {
		return p == ".git" || p == fs.BuildDirectory() || p == "build"
	}, func(p string) error {
		walked = append(walked, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.foo"}, walked); diff != "" {
		t.Errorf("Walk mismatch (-want +got):\n%s", diff)
	}

	if err := fs.RemoveAll(fs.BuildDirectory()); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if out.Exists() {
		t.Error("expected output removed with build directory")
	}
	if err := out.Remove(); err != nil {
		t.Errorf("removing a missing file should not fail: %v", err)
	}
}

func TestDiskFileSystemRejectsRootAsBuildDir(t *testing.T) {
	if _, err := NewDiskFileSystem(t.TempDir(), "."); err == nil {
		t.Error("expected error for build directory equal to root")
	}
}
