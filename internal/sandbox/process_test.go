package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testSandbox returns a process sandbox backed by a real interpreter, or
// skips when none is installed.
func testSandbox(t *testing.T, mutate func(*Policy)) *ProcessSandbox {
	t.Helper()
	policy := DefaultPolicy()
	policy.Timeout = 3 * time.Second
	if mutate != nil {
		mutate(&policy)
	}
	sb := NewProcessSandbox(policy, nil)
	interp, err := sb.Interpreter()
	if err != nil {
		t.Skipf("no interpreter: %v", err)
	}
	if _, err := os.Stat(interp.Path); err != nil {
		t.Skipf("python3 not installed: %v", err)
	}
	return sb
}

func TestProcessExecSuccess(t *testing.T) {
	sb := testSandbox(t, nil)
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "print('hello', 'wörld')"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Success() {
		t.Fatalf("result = %+v", res)
	}
	if res.Stdout != "hello wörld\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Elapsed <= 0 {
		t.Errorf("elapsed = %v", res.Elapsed)
	}
}

func TestProcessExecStdin(t *testing.T) {
	sb := testSandbox(t, nil)
	res, err := sb.Exec(context.Background(), ExecOpts{
		Code:  "import sys\nprint(sys.stdin.read().upper())",
		Stdin: "abc",
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "ABC" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestProcessExecNonZeroExit(t *testing.T) {
	sb := testSandbox(t, nil)
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "raise ValueError('boom')"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Success() || res.ExitCode != 1 || res.State != StateCompleted {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Stderr, "ValueError: boom") {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if strings.Contains(res.Stderr, os.TempDir()) {
		t.Errorf("stderr leaks run directory: %q", res.Stderr)
	}
	if !strings.Contains(res.Stderr, `File "solution.py", line 1`) {
		t.Errorf("stderr = %q, want relative file name", res.Stderr)
	}
}

func TestProcessExecTimeout(t *testing.T) {
	sb := testSandbox(t, func(p *Policy) { p.Timeout = 300 * time.Millisecond })
	start := time.Now()
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "while True:\n    pass"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.State != StateTimedOut {
		t.Errorf("state = %q, want %q", res.State, StateTimedOut)
	}
	if res.Success() {
		t.Error("timed out run reported success")
	}
	if d := time.Since(start); d > 3*time.Second {
		t.Errorf("Exec took %v, want close to the timeout", d)
	}
}

func TestProcessExecTimeoutOverride(t *testing.T) {
	sb := testSandbox(t, nil)
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "while True: pass", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.State != StateTimedOut || res.Timeout != 200*time.Millisecond {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessExecTruncatesOutput(t *testing.T) {
	sb := testSandbox(t, func(p *Policy) { p.MaxOutputBytes = 100 })
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "print('x' * 100000)"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false")
	}
	if len(res.Stdout) != 100 {
		t.Errorf("len(stdout) = %d, want 100", len(res.Stdout))
	}
	if !res.Success() {
		t.Errorf("truncation should not fail the run: %+v", res)
	}
}

func TestProcessExecMemoryLimit(t *testing.T) {
	sb := testSandbox(t, func(p *Policy) {
		p.MaxMemoryBytes = 64 << 20
		p.Timeout = 10 * time.Second
	})
	code := "chunks = []\nfor _ in range(64):\n    chunks.append(b'x' * (8 << 20))\nwhile True:\n    pass"
	res, err := sb.Exec(context.Background(), ExecOpts{Code: code})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	// A MemoryError from the interpreter is acceptable on hosts with tighter
	// limits of their own.
	if res.State != StateMemoryExceeded && !strings.Contains(res.Stderr, "MemoryError") {
		t.Fatalf("result = %+v, want memory limit to stop the run", res)
	}
	if res.State == StateMemoryExceeded && res.PeakMemoryBytes <= 64<<20 {
		t.Errorf("peak = %d, want above the limit", res.PeakMemoryBytes)
	}
}

func TestProcessExecCancel(t *testing.T) {
	sb := testSandbox(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err := sb.Exec(ctx, ExecOpts{Code: "while True:\n    pass"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestProcessExecCancelledBeforeStart(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	sb := testSandbox(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sb.Exec(ctx, ExecOpts{Code: "print(1)"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Errorf("cancelled Exec touched TMPDIR: %v", entries)
	}
}

func TestProcessExecRemovesRunDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	sb := testSandbox(t, func(p *Policy) { p.Timeout = 200 * time.Millisecond })

	programs := []string{"print(1)", "raise SystemExit(4)", "while True: pass", "def broken(:"}
	for _, code := range programs {
		if _, err := sb.Exec(context.Background(), ExecOpts{Code: code}); err != nil {
			t.Fatalf("Exec(%q): %v", code, err)
		}
	}
	left, err := filepath.Glob(filepath.Join(tmp, "oracle-run-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("run directories left behind: %v", left)
	}
}

func TestProcessExecRunsInPrivateDir(t *testing.T) {
	sb := testSandbox(t, nil)
	res, err := sb.Exec(context.Background(), ExecOpts{Code: "import os\nprint(os.getcwd() == os.environ['HOME'])\nprint(sorted(os.listdir('.')))"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	want := "True\n['solution.py']\n"
	if res.Stdout != want {
		t.Errorf("stdout = %q, want %q", res.Stdout, want)
	}
}

func TestProcessExecSpawnFailure(t *testing.T) {
	bogus := filepath.Join(t.TempDir(), "python3")
	// Executable bit set but not a valid program format.
	if err := os.WriteFile(bogus, []byte{0x00, 0x01, 0x02}, 0o755); err != nil {
		t.Fatal(err)
	}
	policy := DefaultPolicy()
	policy.Interpreter = bogus
	sb := NewProcessSandbox(policy, nil)
	_, err := sb.Exec(context.Background(), ExecOpts{Code: "print(1)"})
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Type != ErrSpawn {
		t.Fatalf("err = %v, want ErrSpawn", err)
	}
}

func TestProcessExecBadOverride(t *testing.T) {
	policy := DefaultPolicy()
	policy.Interpreter = filepath.Join(t.TempDir(), "missing-python")
	sb := NewProcessSandbox(policy, nil)
	_, err := sb.Exec(context.Background(), ExecOpts{Code: "print(1)"})
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Type != ErrResolve {
		t.Fatalf("err = %v, want ErrResolve", err)
	}
}

func TestPrepareRunDirRejectsPaths(t *testing.T) {
	if _, _, err := prepareRunDir(ExecOpts{Filename: "../escape.py"}); err == nil {
		t.Error("expected error for path in file name")
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}
	for _, chunk := range []string{"ab", "cd", "efgh", "ij"} {
		n, err := b.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if b.String() != "abcde" || !b.truncated {
		t.Errorf("buffer = %q truncated=%v", b.String(), b.truncated)
	}

	unlimited := &cappedBuffer{}
	unlimited.Write([]byte(strings.Repeat("z", 1000)))
	if len(unlimited.String()) != 1000 || unlimited.truncated {
		t.Error("zero limit should not cap")
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Timeout != 5*time.Second {
		t.Errorf("default timeout = %v, want 5s", p.Timeout)
	}
	if !p.IsImageAllowed("python:3.12-slim") || p.IsImageAllowed("ubuntu:latest") {
		t.Error("image allowlist mismatch")
	}
	if got := p.timeoutFor(ExecOpts{Timeout: time.Second}); got != time.Second {
		t.Errorf("timeoutFor override = %v", got)
	}
	if got := (Policy{}).timeoutFor(ExecOpts{}); got != 5*time.Second {
		t.Errorf("timeoutFor zero policy = %v, want default", got)
	}
}

func TestNewBackends(t *testing.T) {
	if sb, err := New("", DefaultPolicy(), nil); err != nil {
		t.Errorf("New default: %v", err)
	} else if _, ok := sb.(*ProcessSandbox); !ok {
		t.Errorf("default backend = %T", sb)
	}
	if sb, err := New(BackendDocker, DefaultPolicy(), nil); err != nil {
		t.Errorf("New docker: %v", err)
	} else if _, ok := sb.(*DockerSandbox); !ok {
		t.Errorf("docker backend = %T", sb)
	}
	if _, err := New("firejail", DefaultPolicy(), nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
