package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/config"
	"github.com/michaelbrown/oracle/internal/logging"
	"github.com/michaelbrown/oracle/internal/storage"
	"github.com/michaelbrown/oracle/internal/storage/sqlite"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Oracle - Python puzzles judged in a sandbox",
	Long: `Oracle serves Python puzzles and judges submissions by running them
in a sandboxed interpreter against each puzzle's test cases.

Play in the terminal, evaluate a file, or serve the HTTP API.`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./oracle.yaml or ~/.oracle/oracle.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what most commands need: configuration, a logger and the core.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	core *app.Core
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: cfg.Log.Output})
}

func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	core, err := app.NewCore(cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, core: core}, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func (e *env) close() {
	e.log.Sync()
}
