package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelbrown/oracle/internal/sandbox"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oracle.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.Backend != sandbox.BackendProcess {
		t.Errorf("backend = %q", cfg.Sandbox.Backend)
	}
	if cfg.Sandbox.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.MaxOutputBytes != 64<<10 || cfg.Sandbox.Concurrency != 1 {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Storage.DBPath != filepath.Join(home, ".oracle", "oracle.db") {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Server.Port != 8080 || cfg.Log.Level != "info" {
		t.Errorf("server/log = %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.TutorEnabled() {
		t.Error("tutor should be disabled without providers")
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ORACLE_TEST_KEY", "sk-test")
	path := writeConfig(t, `
sandbox:
  interpreter_path: "/opt/py/bin/python3 -X utf8"
  timeout: 2s
  max_output_bytes: 1024
  concurrency: 4
  blocked_modules: [math, random]
  docker:
    image: python:3.11-slim
levels:
  dir: /srv/levels
providers:
  local:
    base_url: http://localhost:11434/v1/
    api_key: ${ORACLE_TEST_KEY}
    models:
      default: llama3
      tutor: qwen2.5-coder
default_provider: local
tutor:
  max_iterations: 2
tools:
  oracle:
    binary: ./bin/oracle-mcp
    enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.Timeout != 2*time.Second || cfg.Sandbox.Concurrency != 4 {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	if len(cfg.Sandbox.BlockedModules) != 2 || cfg.Sandbox.BlockedModules[1] != "random" {
		t.Errorf("blocked = %v", cfg.Sandbox.BlockedModules)
	}
	if cfg.Levels.Dir != "/srv/levels" {
		t.Errorf("levels dir = %q", cfg.Levels.Dir)
	}

	p, err := cfg.Provider("")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.APIKey != "sk-test" || !p.IsOllama() {
		t.Errorf("provider = %+v", p)
	}
	if !cfg.TutorEnabled() || cfg.TutorModel(p) != "qwen2.5-coder" || cfg.Tutor.MaxIterations != 2 {
		t.Errorf("tutor = %+v model %q", cfg.Tutor, cfg.TutorModel(p))
	}
	if !cfg.Tools["oracle"].Enabled {
		t.Errorf("tools = %+v", cfg.Tools)
	}

	policy := cfg.Policy()
	if policy.Interpreter != "/opt/py/bin/python3 -X utf8" || policy.MaxOutputBytes != 1024 {
		t.Errorf("policy = %+v", policy)
	}
	if policy.DockerImage != "python:3.11-slim" || policy.DockerMemory != "256m" {
		t.Errorf("docker policy = %+v", policy)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORACLE_SANDBOX_TIMEOUT", "750ms")
	t.Setenv("ORACLE_SERVER_PORT", "9090")
	cfg, err := Load(writeConfig(t, "sandbox:\n  timeout: 3s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sandbox.Timeout != 750*time.Millisecond {
		t.Errorf("timeout = %s", cfg.Sandbox.Timeout)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"backend":     "sandbox:\n  backend: vm\n",
		"timeout":     "sandbox:\n  timeout: 0s\n",
		"output":      "sandbox:\n  max_output_bytes: -1\n",
		"concurrency": "sandbox:\n  concurrency: 0\n",
		"port":        "server:\n  port: 70000\n",
		"yaml":        "sandbox: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := expandHome("~/levels"); got != "/home/tester/levels" {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome = %q", got)
	}
}
