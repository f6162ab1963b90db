// oracle-mcp serves the level catalog and the sandboxed evaluator as MCP
// tools over stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/config"
	"github.com/michaelbrown/oracle/internal/logging"
	"github.com/michaelbrown/oracle/internal/mcpserver"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default: ./oracle.yaml or ~/.oracle/oracle.yaml)")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "oracle-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs must never go there.
	output := cfg.Log.Output
	if output == "stdout" {
		output = "stderr"
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: output})
	if err != nil {
		return err
	}
	defer log.Sync()

	core, err := app.NewCore(cfg, log)
	if err != nil {
		return err
	}
	log.Info("serving MCP tools", zap.Int("levels", len(core.Catalog.All())), zap.String("backend", cfg.Sandbox.Backend))
	return mcpserver.New(core.Catalog, core.Evaluator, log).ServeStdio(app.Version)
}
