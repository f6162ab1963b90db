// Package app wires configured components together for the binaries.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/config"
	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/llm"
	"github.com/michaelbrown/oracle/internal/sandbox"
	"github.com/michaelbrown/oracle/internal/tools"
	"github.com/michaelbrown/oracle/internal/tutor"
	"github.com/michaelbrown/oracle/internal/validator"
	"github.com/michaelbrown/oracle/levels"
)

// Version is reported by the CLI and the MCP server.
const Version = "0.1.0"

// ErrTutorDisabled is returned by NewTutor when no provider is configured.
var ErrTutorDisabled = errors.New("tutor is not configured")

// Core is the catalog plus an evaluator built from configuration.
type Core struct {
	Catalog   *level.Catalog
	Sandbox   sandbox.Sandbox
	Evaluator *evaluator.Evaluator
}

// LoadCatalog returns levels from cfg.Levels.Dir, or the embedded set.
func LoadCatalog(cfg *config.Config) (*level.Catalog, error) {
	if cfg.Levels.Dir != "" {
		c, err := level.LoadDir(cfg.Levels.Dir)
		if err != nil {
			return nil, fmt.Errorf("loading levels from %s: %w", cfg.Levels.Dir, err)
		}
		return c, nil
	}
	return level.Load(levels.Files)
}

// NewCore builds the catalog, sandbox and evaluator.
func NewCore(cfg *config.Config, log *zap.Logger) (*Core, error) {
	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	sb, err := sandbox.New(cfg.Sandbox.Backend, cfg.Policy(), log)
	if err != nil {
		return nil, err
	}
	ev := evaluator.New(sb, log)
	ev.SetConcurrency(cfg.Sandbox.Concurrency)
	if len(cfg.Sandbox.BlockedModules) > 0 {
		ev.SetValidator(validator.WithBlockedModules(cfg.Sandbox.BlockedModules...))
	}
	return &Core{Catalog: catalog, Sandbox: sb, Evaluator: ev}, nil
}

// NewTutor builds a tutor for the configured provider. It does not select a
// level; callers do that with SetLevel. registry may be nil.
func NewTutor(cfg *config.Config, eval tutor.Evaluator, registry *tools.Registry, log *zap.Logger) (*tutor.Tutor, error) {
	if !cfg.TutorEnabled() {
		return nil, ErrTutorDisabled
	}
	provider, err := cfg.Provider(cfg.Tutor.Provider)
	if err != nil {
		return nil, err
	}
	model := cfg.TutorModel(provider)
	if model == "" {
		return nil, fmt.Errorf("no tutor model configured for provider %q", cfg.Tutor.Provider)
	}

	t := tutor.New(llm.NewClient(provider.BaseURL, provider.APIKey, model, log), eval, registry, log)
	t.SetMaxIterations(cfg.Tutor.MaxIterations)
	t.SetMaxTokens(cfg.Tutor.ContextMaxTokens)
	if utility := provider.Models["utility"]; utility != "" {
		t.SetUtilityLLM(llm.NewClient(provider.BaseURL, provider.APIKey, utility, log))
	}
	if cfg.Tutor.Persona != "" {
		p, err := tutor.LoadPersona(cfg.Tutor.Persona)
		if err != nil {
			return nil, err
		}
		t.SetPersona(p)
	}
	return t, nil
}
