package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/oracle/internal/sandbox"
	"github.com/michaelbrown/oracle/internal/tools"
)

type DockerConfig struct {
	Image  string `mapstructure:"image"`
	Memory string `mapstructure:"memory"`
}

type SandboxConfig struct {
	Backend         string        `mapstructure:"backend"`
	InterpreterPath string        `mapstructure:"interpreter_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxOutputBytes  int           `mapstructure:"max_output_bytes"`
	MaxMemoryBytes  uint64        `mapstructure:"max_memory_bytes"`
	Concurrency     int           `mapstructure:"concurrency"`
	BlockedModules  []string      `mapstructure:"blocked_modules"`
	Docker          DockerConfig  `mapstructure:"docker"`
}

type LevelsConfig struct {
	Dir string `mapstructure:"dir"`
}

type ProviderConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Models  map[string]string `mapstructure:"models"`
}

type TutorConfig struct {
	Provider         string `mapstructure:"provider"`
	Model            string `mapstructure:"model"`
	MaxIterations    int    `mapstructure:"max_iterations"`
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
	Persona          string `mapstructure:"persona"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type Config struct {
	Sandbox         SandboxConfig                     `mapstructure:"sandbox"`
	Levels          LevelsConfig                      `mapstructure:"levels"`
	Providers       map[string]ProviderConfig         `mapstructure:"providers"`
	DefaultProvider string                            `mapstructure:"default_provider"`
	Tutor           TutorConfig                       `mapstructure:"tutor"`
	Server          ServerConfig                      `mapstructure:"server"`
	Storage         StorageConfig                     `mapstructure:"storage"`
	Log             LogConfig                         `mapstructure:"log"`
	Tools           map[string]tools.ToolServerConfig `mapstructure:"tools"`
}

// Load reads oracle.yaml from path, or from . and $HOME/.oracle when path is
// empty. A missing config file is not an error; defaults and ORACLE_*
// environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("oracle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.oracle")
	}
	v.SetEnvPrefix("ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for name, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)
	cfg.Levels.Dir = expandHome(cfg.Levels.Dir)
	cfg.Tutor.Persona = expandHome(cfg.Tutor.Persona)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := sandbox.DefaultPolicy()
	v.SetDefault("sandbox.backend", sandbox.BackendProcess)
	v.SetDefault("sandbox.interpreter_path", "")
	v.SetDefault("sandbox.timeout", policy.Timeout)
	v.SetDefault("sandbox.max_output_bytes", policy.MaxOutputBytes)
	v.SetDefault("sandbox.max_memory_bytes", policy.MaxMemoryBytes)
	v.SetDefault("sandbox.concurrency", 1)
	v.SetDefault("sandbox.docker.image", policy.DockerImage)
	v.SetDefault("sandbox.docker.memory", policy.DockerMemory)
	v.SetDefault("levels.dir", "")
	v.SetDefault("default_provider", "ollama")
	v.SetDefault("tutor.max_iterations", 4)
	v.SetDefault("tutor.context_max_tokens", 6000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".oracle", "oracle.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case sandbox.BackendProcess, sandbox.BackendDocker:
	default:
		return fmt.Errorf("sandbox.backend: unknown backend %q", c.Sandbox.Backend)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got %d", c.Sandbox.MaxOutputBytes)
	}
	if c.Sandbox.Concurrency < 1 {
		return fmt.Errorf("sandbox.concurrency must be at least 1, got %d", c.Sandbox.Concurrency)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Policy converts the sandbox section into a sandbox.Policy.
func (c *Config) Policy() sandbox.Policy {
	p := sandbox.DefaultPolicy()
	p.Interpreter = c.Sandbox.InterpreterPath
	p.Timeout = c.Sandbox.Timeout
	p.MaxOutputBytes = c.Sandbox.MaxOutputBytes
	p.MaxMemoryBytes = c.Sandbox.MaxMemoryBytes
	if c.Sandbox.Docker.Image != "" {
		p.DockerImage = c.Sandbox.Docker.Image
	}
	if c.Sandbox.Docker.Memory != "" {
		p.DockerMemory = c.Sandbox.Docker.Memory
	}
	return p
}

// IsOllama returns true if this provider looks like an Ollama instance.
func (p ProviderConfig) IsOllama() bool {
	return strings.Contains(p.BaseURL, ":11434") || strings.Contains(strings.ToLower(p.BaseURL), "ollama")
}

// Provider returns the config for a named provider, falling back to the default.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// TutorEnabled reports whether a provider is configured for the tutor.
func (c *Config) TutorEnabled() bool {
	p, err := c.Provider(c.Tutor.Provider)
	return err == nil && p.BaseURL != ""
}

// TutorModel resolves the tutor's model: tutor.model, then the provider's
// "tutor" model, then its "default" model.
func (c *Config) TutorModel(p ProviderConfig) string {
	if c.Tutor.Model != "" {
		return c.Tutor.Model
	}
	if m := p.Models["tutor"]; m != "" {
		return m
	}
	return p.Models["default"]
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
