package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/server"
	"github.com/michaelbrown/oracle/internal/tools"
	"github.com/michaelbrown/oracle/internal/tutor"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Oracle HTTP API",
	Long: `Start the Oracle HTTP server with REST and WebSocket endpoints under /api.

Examples:
  oracle serve
  oracle serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	store, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := tools.NewRegistry(e.log)
	defer registry.Close()
	if err := registry.RegisterAll(context.Background(), e.cfg.Tools); err != nil {
		e.log.Warn("some tool servers failed to start", zap.Error(err))
	}

	var factory server.TutorFactory
	if e.cfg.TutorEnabled() {
		factory = func() (*tutor.Tutor, error) {
			return app.NewTutor(e.cfg, e.core.Evaluator, registry, e.log)
		}
		if _, err := factory(); err != nil {
			return err
		}
	} else {
		e.log.Info("tutor disabled: no provider configured")
	}

	port := e.cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(e.core.Catalog, e.core.Evaluator, store, factory, e.log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("shutdown", zap.Error(err))
		}
	}()

	return srv.Start(port)
}
