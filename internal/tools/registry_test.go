package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/oracle/internal/tools"
)

// The integration tests below need the tool server binaries in bin/:
//
//	go build -o bin/oracle-mcp ./cmd/tools/oracle-mcp
//	go build -o bin/python-docs ./cmd/tools/python-docs

func binPath(name string) string {
	wd, _ := os.Getwd()
	for d := wd; d != "/"; d = filepath.Dir(d) {
		candidate := filepath.Join(d, "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join("bin", name)
}

func skipIfNoBinary(t *testing.T, name string) string {
	t.Helper()
	path := binPath(name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("binary %s not found at %s (build it into bin/ first)", name, path)
	}
	return path
}

func TestRegistryEmpty(t *testing.T) {
	r := tools.NewRegistry(nil)
	defer r.Close()

	if r.HasTools() {
		t.Fatal("empty registry should not have tools")
	}
	if got := r.AllTools(); len(got) != 0 {
		t.Fatalf("AllTools() = %d, want 0", len(got))
	}
	if _, err := r.CallTool(context.Background(), "nonexistent", nil); err == nil {
		t.Fatal("CallTool on empty registry should return error")
	}
}

func TestRegistrySkipsDisabled(t *testing.T) {
	r := tools.NewRegistry(nil)
	defer r.Close()

	err := r.Register(context.Background(), "disabled-server", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("Register disabled server should not error: %v", err)
	}
	if r.HasTools() {
		t.Fatal("disabled server should not register tools")
	}
}

func TestRegistryBadBinary(t *testing.T) {
	r := tools.NewRegistry(nil)
	defer r.Close()

	err := r.Register(context.Background(), "bad", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: true,
	})
	if err == nil {
		t.Fatal("Register with bad binary should return error")
	}
}

func TestRegisterAllJoinsErrors(t *testing.T) {
	r := tools.NewRegistry(nil)
	defer r.Close()

	err := r.RegisterAll(context.Background(), map[string]tools.ToolServerConfig{
		"bad-a": {Binary: "/nonexistent/a", Enabled: true},
		"bad-b": {Binary: "/nonexistent/b", Enabled: true},
		"off":   {Binary: "/nonexistent/c"},
	})
	if err == nil {
		t.Fatal("expected joined error")
	}
	for _, name := range []string{"bad-a", "bad-b"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
	if strings.Contains(err.Error(), "off") {
		t.Errorf("disabled server reported: %v", err)
	}
}

func TestOracleMCP(t *testing.T) {
	bin := skipIfNoBinary(t, "oracle-mcp")

	r := tools.NewRegistry(nil)
	defer r.Close()

	if err := r.Register(context.Background(), "oracle", tools.ToolServerConfig{Binary: bin, Enabled: true}); err != nil {
		t.Fatalf("Register oracle-mcp: %v", err)
	}
	for _, name := range []string{"list_levels", "describe_level", "evaluate_submission"} {
		if !r.HasTool(name) {
			t.Errorf("tool %s not discovered", name)
		}
	}

	ctx := context.Background()
	result, err := r.CallTool(ctx, "list_levels", nil)
	if err != nil {
		t.Fatalf("list_levels: %v", err)
	}
	if !strings.Contains(result, "measuring-charm") {
		t.Errorf("list_levels result: %q", result)
	}

	result, err = r.CallTool(ctx, "describe_level", map[string]any{"level": "1"})
	if err != nil {
		t.Fatalf("describe_level: %v", err)
	}
	if !strings.Contains(result, "get_length") {
		t.Errorf("describe_level result: %q", result)
	}
}

func TestOracleMCPEvaluate(t *testing.T) {
	bin := skipIfNoBinary(t, "oracle-mcp")
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}

	r := tools.NewRegistry(nil)
	defer r.Close()
	if err := r.Register(context.Background(), "oracle", tools.ToolServerConfig{Binary: bin, Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	result, err := r.CallTool(ctx, "evaluate_submission", map[string]any{
		"level": "measuring-charm",
		"code":  "def get_length(word=\"\"):\n    return len(word)\n",
	})
	if err != nil {
		t.Fatalf("evaluate_submission: %v", err)
	}
	if strings.HasPrefix(result, "error:") || !strings.Contains(result, "passed") {
		t.Errorf("passing submission result: %q", result)
	}

	result, err = r.CallTool(ctx, "evaluate_submission", map[string]any{
		"level": "measuring-charm",
		"code":  "import os\ndef get_length(word):\n    return 0\n",
	})
	if err != nil {
		t.Fatalf("evaluate_submission: %v", err)
	}
	if !strings.HasPrefix(result, "error:") || !strings.Contains(result, "import os") {
		t.Errorf("rejected submission result: %q", result)
	}
}

func TestPythonDocsServer(t *testing.T) {
	bin := skipIfNoBinary(t, "python-docs")
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}

	r := tools.NewRegistry(nil)
	defer r.Close()
	err := r.Register(context.Background(), "docs", tools.ToolServerConfig{Binary: bin, Enabled: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Register python-docs: %v", err)
	}

	ctx := context.Background()
	result, err := r.CallTool(ctx, "python_docs", map[string]any{"name": "len"})
	if err != nil {
		t.Fatalf("python_docs: %v", err)
	}
	if !strings.Contains(result, "len") || strings.HasPrefix(result, "error:") {
		t.Errorf("len docs: %q", result)
	}

	result, err = r.CallTool(ctx, "python_docs", map[string]any{"name": "os.system"})
	if err != nil {
		t.Fatalf("python_docs: %v", err)
	}
	if !strings.HasPrefix(result, "error:") {
		t.Errorf("os.system docs should be refused: %q", result)
	}
}
