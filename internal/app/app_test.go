package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelbrown/oracle/internal/config"
	"github.com/michaelbrown/oracle/internal/sandbox"
)

func testConfig() *config.Config {
	return &config.Config{
		Sandbox: config.SandboxConfig{
			Backend:        sandbox.BackendProcess,
			Timeout:        time.Second,
			MaxOutputBytes: 1024,
			Concurrency:    2,
			BlockedModules: []string{"math"},
		},
	}
}

func TestNewCoreEmbedded(t *testing.T) {
	core, err := NewCore(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if len(core.Catalog.All()) == 0 {
		t.Error("no embedded levels")
	}
	if _, ok := core.Sandbox.(*sandbox.ProcessSandbox); !ok {
		t.Errorf("sandbox = %T", core.Sandbox)
	}
}

func TestNewCoreLevelsDir(t *testing.T) {
	dir := t.TempDir()
	lvl := "id: only\nnumber: 1\ndifficulty: beginner\nfunction_name: f\ntest_cases:\n  - inputs: []\n    expected_output: \"1\"\n"
	if err := os.WriteFile(filepath.Join(dir, "only.yaml"), []byte(lvl), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Levels.Dir = dir
	core, err := NewCore(cfg, nil)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if all := core.Catalog.All(); len(all) != 1 || all[0].ID != "only" {
		t.Errorf("levels = %v", all)
	}

	cfg.Levels.Dir = filepath.Join(dir, "missing")
	if _, err := NewCore(cfg, nil); err == nil {
		t.Error("expected error for missing levels dir")
	}
}

func TestNewCoreBadBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Sandbox.Backend = "vm"
	if _, err := NewCore(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewTutor(t *testing.T) {
	cfg := testConfig()
	core, err := NewCore(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTutor(cfg, core.Evaluator, nil, nil); !errors.Is(err, ErrTutorDisabled) {
		t.Fatalf("err = %v, want ErrTutorDisabled", err)
	}

	cfg.DefaultProvider = "local"
	cfg.Providers = map[string]config.ProviderConfig{
		"local": {BaseURL: "http://localhost:11434/v1/", Models: map[string]string{"default": "llama3"}},
	}
	cfg.Tutor.MaxIterations = 3
	tu, err := NewTutor(cfg, core.Evaluator, nil, nil)
	if err != nil {
		t.Fatalf("NewTutor: %v", err)
	}
	if names := tu.ToolNames(); len(names) != 1 || names[0] != "run_tests" {
		t.Errorf("tools = %v", names)
	}

	cfg.Tutor.Persona = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewTutor(cfg, core.Evaluator, nil, nil); err == nil {
		t.Error("expected error for missing persona file")
	}

	cfg.Tutor.Persona = ""
	cfg.Providers["local"] = config.ProviderConfig{BaseURL: "http://localhost:11434/v1/"}
	if _, err := NewTutor(cfg, core.Evaluator, nil, nil); err == nil {
		t.Error("expected error when no model is configured")
	}
}
