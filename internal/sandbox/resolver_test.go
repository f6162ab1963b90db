package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func noLookPath(string) (string, error) { return "", errors.New("not found") }

func TestResolverOverrideAbsolute(t *testing.T) {
	py := writeExecutable(t, t.TempDir(), "python3")
	r := NewResolver(py + " -X utf8")
	interp, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if interp.Path != py {
		t.Errorf("path = %q, want %q", interp.Path, py)
	}
	if !slices.Equal(interp.Args, []string{"-X", "utf8"}) {
		t.Errorf("args = %v", interp.Args)
	}
	got := interp.Command("-I", "x.py")
	want := []string{py, "-X", "utf8", "-I", "x.py"}
	if !slices.Equal(got, want) {
		t.Errorf("Command = %v, want %v", got, want)
	}
}

func TestResolverOverrideQuotedPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "with space")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	py := writeExecutable(t, dir, "py")
	r := NewResolver(`"` + py + `"`)
	interp, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if interp.Path != py || len(interp.Args) != 0 {
		t.Errorf("interp = %+v", interp)
	}
}

func TestResolverOverrideRelativeUsesLookPath(t *testing.T) {
	r := NewResolver("env python3")
	r.lookPath = func(name string) (string, error) {
		if name != "env" {
			t.Errorf("lookPath(%q)", name)
		}
		return "/usr/bin/env", nil
	}
	interp, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if interp.Path != "/usr/bin/env" || !slices.Equal(interp.Args, []string{"python3"}) {
		t.Errorf("interp = %+v", interp)
	}
}

func TestResolverOverrideErrors(t *testing.T) {
	dir := t.TempDir()
	notExec := filepath.Join(dir, "python3")
	if err := os.WriteFile(notExec, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := map[string]string{
		"not executable": notExec,
		"missing":        filepath.Join(dir, "nope"),
		"directory":      dir,
		"bad quoting":    `"/usr/bin/python3`,
		"unknown name":   "no-such-python",
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewResolver(override)
			r.lookPath = noLookPath
			_, err := r.Resolve()
			var sbErr *Error
			if !errors.As(err, &sbErr) || sbErr.Type != ErrResolve {
				t.Fatalf("err = %v, want ErrResolve", err)
			}
		})
	}
}

func TestResolverCandidatesInOrder(t *testing.T) {
	dir := t.TempDir()
	second := writeExecutable(t, dir, "second")
	third := writeExecutable(t, dir, "third")
	r := NewResolver("")
	r.candidates = []string{filepath.Join(dir, "missing"), second, third}
	r.lookPath = func(string) (string, error) {
		t.Error("lookPath called although a candidate exists")
		return "", errors.New("unused")
	}
	interp, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if interp.Path != second {
		t.Errorf("path = %q, want %q", interp.Path, second)
	}
}

func TestResolverFallbacks(t *testing.T) {
	r := NewResolver("")
	r.candidates = nil
	r.lookPath = func(string) (string, error) { return "/found/python3", nil }
	if interp, _ := r.Resolve(); interp.Path != "/found/python3" {
		t.Errorf("path = %q, want search path result", interp.Path)
	}

	r = NewResolver("")
	r.candidates = nil
	r.lookPath = noLookPath
	interp, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if interp.Path != fallbackPath {
		t.Errorf("path = %q, want %q", interp.Path, fallbackPath)
	}
}

func TestResolverCachesResult(t *testing.T) {
	calls := 0
	r := NewResolver("")
	r.candidates = nil
	r.lookPath = func(string) (string, error) {
		calls++
		return "/found/python3", nil
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("lookPath called %d times, want 1", calls)
	}
}
