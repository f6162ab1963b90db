package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/oracle/internal/level"
)

var levelsCmd = &cobra.Command{
	Use:     "levels",
	Aliases: []string{"level", "l"},
	Short:   "Browse puzzles",
	RunE:    runLevelsList,
}

var levelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every level",
	RunE:  runLevelsList,
}

var levelsShowCmd = &cobra.Command{
	Use:   "show <level>",
	Short: "Show a level's story, task and starter code",
	Long: `Show a level by id, number, or unique id prefix.

Examples:
  oracle levels show 3
  oracle levels show measuring`,
	Args: cobra.ExactArgs(1),
	RunE: runLevelsShow,
}

func init() {
	rootCmd.AddCommand(levelsCmd)
	levelsCmd.AddCommand(levelsListCmd, levelsShowCmd)
}

func runLevelsList(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	fmt.Printf("%-4s %-26s %-28s %-12s %s\n", "#", "ID", "TITLE", "DIFFICULTY", "CONCEPT")
	fmt.Println(strings.Repeat("─", 86))
	for _, l := range e.core.Catalog.All() {
		fmt.Printf("%-4d %-26s %-28s %-12s %s\n", l.Number, l.ID, truncate(l.Title, 27), l.Difficulty.Stars(), l.Concept)
	}
	return nil
}

func runLevelsShow(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	l, err := e.core.Catalog.Get(args[0])
	if err != nil {
		return err
	}
	printLevelTo(os.Stdout, l)
	return nil
}

func printLevelTo(w io.Writer, l *level.Level) {
	fmt.Fprintf(w, "\033[1mLevel %d: %s\033[0m  %s\n", l.Number, l.Title, l.Difficulty.Stars())
	if l.Story != "" {
		fmt.Fprintf(w, "\n\033[90m%s\033[0m\n", strings.TrimSpace(l.Story))
	}
	if l.OracleSays != "" {
		fmt.Fprintf(w, "\n\033[35mThe Oracle says:\033[0m %s\n", l.OracleSays)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(l.Description))
	if l.Example != "" {
		fmt.Fprintf(w, "\nExample:\n  %s\n", strings.ReplaceAll(strings.TrimSpace(l.Example), "\n", "\n  "))
	}
	fmt.Fprintf(w, "\nStarter:\n%s\n", l.StarterCode())
	fmt.Fprintf(w, "Tests: %d | Rewards: %d XP, %d mana\n", len(l.TestCases), l.XPReward, l.ManaReward)
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
