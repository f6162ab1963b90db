package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/storage"
)

var (
	statusFilter string
	levelFilter  string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var attemptsCmd = &cobra.Command{
	Use:     "attempts",
	Aliases: []string{"attempt", "a"},
	Short:   "Browse recorded submissions",
	RunE:    runAttemptsList,
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attempts, newest first",
	RunE:  runAttemptsList,
}

var attemptsShowCmd = &cobra.Command{
	Use:   "show <attempt-id>",
	Short: "Show an attempt's code and verdicts",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttemptsShow,
}

var attemptsDeleteCmd = &cobra.Command{
	Use:   "delete <attempt-id>",
	Short: "Delete an attempt",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttemptsDelete,
}

var attemptsExportCmd = &cobra.Command{
	Use:   "export <attempt-id>",
	Short: "Export an attempt and its tutor conversation as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttemptsExport,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.AddCommand(attemptsListCmd, attemptsShowCmd, attemptsDeleteCmd, attemptsExportCmd)

	for _, c := range []*cobra.Command{attemptsCmd, attemptsListCmd} {
		c.Flags().StringVar(&statusFilter, "status", "", "Filter by status (passed, failed, rejected)")
		c.Flags().StringVar(&levelFilter, "level", "", "Filter by level id or number")
		c.Flags().IntVar(&limitFlag, "limit", 20, "Max attempts to show")
	}

	attemptsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	attemptsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	attemptsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func runAttemptsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := storage.AttemptListOptions{
		Status: storage.AttemptStatus(statusFilter),
		Limit:  limitFlag,
	}
	if levelFilter != "" {
		catalog, err := app.LoadCatalog(cfg)
		if err != nil {
			return err
		}
		l, err := catalog.Get(levelFilter)
		if err != nil {
			return err
		}
		opts.LevelID = l.ID
	}

	attempts, err := store.ListAttempts(context.Background(), opts)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("No attempts found.")
		return nil
	}

	fmt.Printf("%-10s %-6s %-26s %-10s %-7s %-10s %s\n", "ID", "#", "LEVEL", "STATUS", "TESTS", "ELAPSED", "WHEN")
	fmt.Println(strings.Repeat("─", 85))
	for _, a := range attempts {
		fmt.Printf("%-10s %-6d %-26s %-10s %-7s %-10s %s\n",
			a.ID[:8], a.LevelNumber, truncate(a.LevelID, 25), a.Status,
			fmt.Sprintf("%d/%d", a.Passed, a.Total), a.Elapsed.Round(time.Millisecond), timeAgo(a.CreatedAt))
	}
	return nil
}

func runAttemptsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := store.GetAttempt(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Attempt:  %s\n", a.ID)
	fmt.Printf("Level:    %d (%s)\n", a.LevelNumber, a.LevelID)
	fmt.Printf("Status:   %s (%d/%d)\n", a.Status, a.Passed, a.Total)
	fmt.Printf("Elapsed:  %s\n", a.Elapsed.Round(time.Millisecond))
	fmt.Printf("Created:  %s\n", a.CreatedAt.Local().Format(time.RFC3339))
	fmt.Println(strings.Repeat("─", 60))
	fmt.Print(a.Code)
	if !strings.HasSuffix(a.Code, "\n") {
		fmt.Println()
	}
	fmt.Println(strings.Repeat("─", 60))

	r, err := a.DecodeReport()
	if err != nil {
		return err
	}
	printReport(os.Stdout, r)
	return nil
}

func runAttemptsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	a, err := store.GetAttempt(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete attempt %s on level %d (%s)? [y/N] ", a.ID[:8], a.LevelNumber, a.Status)
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteAttempt(ctx, a.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted attempt %s\n", a.ID[:8])
	return nil
}

func runAttemptsExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	a, err := store.GetAttempt(ctx, args[0])
	if err != nil {
		return err
	}
	conversation, err := store.LoadConversation(ctx, a.LevelID)
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(a, conversation)
		if err != nil {
			return err
		}
		output = string(data)
	case "md", "markdown":
		output = storage.ExportMarkdown(a, conversation)
	default:
		return fmt.Errorf("unknown export format %q (want md or json)", exportFormat)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}
	fmt.Print(output)
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
