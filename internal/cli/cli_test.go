package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/bob/internal/config"
	"github.com/aristath/bob/internal/persistence"
)

// newProjectDir creates a project root with cfg as its config and files as
// sources. HOME points at an empty directory so no global config applies.
func newProjectDir(t *testing.T, cfg config.BobConfig, files map[string]string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".bob"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".bob", "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func copyConfig() config.BobConfig {
	return config.BobConfig{Copy: map[string]string{".txt": ".txtc"}}
}

func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(nil, &stdout, &stderr)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.ExecuteContext(context.Background())
	if stderr.Len() > 0 {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func TestBuildCommand(t *testing.T) {
	root := newProjectDir(t, copyConfig(), map[string]string{
		"a.txt":       "alpha",
		"dir/b.txt":   "beta",
		"ignored.bin": "raw",
	})

	out, err := run(t, root, "build")
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	for _, want := range []string{"OK   copy a.txt", "OK   copy dir/b.txt", "2 tasks executed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	data, err := os.ReadFile(filepath.Join(root, "build", "default", "dir", "b.txtc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "beta" {
		t.Errorf("copied content = %q", data)
	}

	out, err = run(t, root, "build")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "0 tasks executed") {
		t.Errorf("second build should execute nothing:\n%s", out)
	}
}

func TestBuildCommandFlags(t *testing.T) {
	root := newProjectDir(t, copyConfig(), map[string]string{"a.txt": "alpha"})

	out, err := run(t, root, "build", "--build-dir", "out", "-j", "2", "--no-history", "--log-format", "json")
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(root, "out", "a.txtc")); err != nil {
		t.Errorf("output not in --build-dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "out", persistence.FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("history must not be recorded with --no-history, stat err = %v", err)
	}
}

func TestBuildCommandReportsFailures(t *testing.T) {
	cfg := config.BobConfig{
		Commands: map[string]config.CommandConfig{
			"lint": {
				Tool:   "sh",
				Args:   []string{"-c", `echo "{input}:2: error: unexpected token" >&2; exit 1`},
				InExts: []string{".src"},
				OutExt: ".out",
			},
		},
	}
	root := newProjectDir(t, cfg, map[string]string{"main.src": "x"})

	out, err := run(t, root, "build")
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if !strings.Contains(out, "FAIL lint main.src: main.src:2: unexpected token") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestChainedCommands(t *testing.T) {
	root := newProjectDir(t, copyConfig(), map[string]string{"a.txt": "alpha"})

	if _, err := run(t, root, "build"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, root, "clean", "build")
	if err != nil {
		t.Fatalf("clean build: %v\n%s", err, out)
	}
	cleanAt := strings.Index(out, "removed build/default/a.txtc")
	buildAt := strings.Index(out, "OK   copy a.txt")
	if cleanAt < 0 || buildAt < cleanAt {
		t.Errorf("expected clean then build:\n%s", out)
	}

	if _, err := run(t, root, "distclean"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "build", "default")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("build directory still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); err != nil {
		t.Errorf("distclean touched a source: %v", err)
	}

	if _, err := run(t, root, "build", "bogus"); err == nil {
		t.Error("expected an error for an unknown chained command")
	}
}

func TestHistoryCommands(t *testing.T) {
	root := newProjectDir(t, copyConfig(), map[string]string{"a.txt": "alpha"})

	out, err := run(t, root, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No builds recorded.") {
		t.Errorf("unexpected output before any build:\n%s", out)
	}

	if _, err := run(t, root, "build"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, root, "build"); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, root, "history", "--limit", "5")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "success") != 2 {
		t.Errorf("expected two successful builds:\n%s", out)
	}

	ctx := context.Background()
	store, err := persistence.NewSQLiteStore(ctx, filepath.Join(root, "build", "default", persistence.FileName))
	if err != nil {
		t.Fatal(err)
	}
	builds, err := store.ListBuilds(ctx, 0)
	store.Close()
	if err != nil {
		t.Fatal(err)
	}
	oldest := builds[len(builds)-1]

	out, err = run(t, root, "history", "show", oldest.ID[:8])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "OK   copy a.txt") || !strings.Contains(out, oldest.ID) {
		t.Errorf("unexpected show output:\n%s", out)
	}

	if _, err := run(t, root, "history", "show", "does-not-exist"); !errors.Is(err, persistence.ErrBuildNotFound) {
		t.Errorf("expected ErrBuildNotFound, got %v", err)
	}

	out, err = run(t, root, "history", "prune", "--keep", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Removed 1 builds.") {
		t.Errorf("unexpected prune output:\n%s", out)
	}
}

func TestResolveCommand(t *testing.T) {
	root := newProjectDir(t, copyConfig(), map[string]string{"a.txt": "alpha"})

	out, err := run(t, root, "resolve", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"builder:      copy (.txt -> .txtc", "outputs:      build/default/a.txtc", "up to date:   false"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	if _, err := run(t, root, "build"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, root, "resolve", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "up to date:   true") {
		t.Errorf("expected up to date after build:\n%s", out)
	}

	if _, err := run(t, root, "resolve", "a.unknown"); err == nil {
		t.Error("expected an error for a path without a builder")
	}
}

func TestInvalidFlags(t *testing.T) {
	root := newProjectDir(t, copyConfig(), nil)

	if _, err := run(t, root, "build", "--log-format", "xml"); err == nil {
		t.Error("expected an error for an unknown log format")
	}
	if _, err := run(t, root, "build", "--config", filepath.Join(root, "missing.json")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}
