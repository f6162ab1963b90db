package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/storage"
)

var (
	jsonFlag   bool
	noSaveFlag bool
)

// errNotPassed makes `oracle run` exit non-zero.
var errNotPassed = errors.New("submission did not pass")

var runCmd = &cobra.Command{
	Use:   "run <level> <file|->",
	Short: "Evaluate a Python file against a level's tests",
	Long: `Evaluate a Python file against a level's test cases in the sandbox.
Use - to read the code from stdin. Exits non-zero unless every test passes.

Examples:
  oracle run 1 solution.py
  cat solution.py | oracle run measuring-charm -
  oracle run 3 solution.py --json`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the report as JSON")
	runCmd.Flags().BoolVar(&noSaveFlag, "no-save", false, "Do not record the attempt")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	l, err := e.core.Catalog.Get(args[0])
	if err != nil {
		return err
	}
	code, err := readSource(args[1], cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := e.core.Evaluator.Evaluate(ctx, code, l.FunctionName, l.TestCases)
	if err != nil {
		return err
	}

	if !noSaveFlag {
		if err := recordAttempt(e, l, code, report); err != nil {
			e.log.Warn("attempt not recorded", zap.Error(err))
		}
	}

	if jsonFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if report.Status != evaluator.StatusPassed {
		return errNotPassed
	}
	return nil
}

func readSource(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return string(data), nil
}

func recordAttempt(e *env, l *level.Level, code string, report *evaluator.Report) error {
	store, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := storage.NewAttempt(l, code, report)
	if err != nil {
		return err
	}
	return store.CreateAttempt(context.Background(), a)
}

// printReport writes the report summary, colored by status.
func printReport(w io.Writer, r *evaluator.Report) {
	color := "\033[31m"
	switch r.Status {
	case evaluator.StatusPassed:
		color = "\033[32m"
	case evaluator.StatusRejected:
		color = "\033[33m"
	}
	fmt.Fprintf(w, "%s%s\033[0m", color, r.Summary())
}
