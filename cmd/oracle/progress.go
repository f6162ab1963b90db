package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/storage"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show solved levels, best times and earned rewards",
	RunE:  runProgress,
}

func init() {
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	progress, err := store.Progress(context.Background())
	if err != nil {
		return err
	}
	byLevel := make(map[string]storage.LevelProgress, len(progress))
	for _, p := range progress {
		byLevel[p.LevelID] = p
	}

	var solved, xp, mana int
	fmt.Printf("%-4s %-28s %-8s %-9s %-10s %s\n", "#", "TITLE", "SOLVED", "ATTEMPTS", "BEST", "FIRST SOLVED")
	fmt.Println(strings.Repeat("─", 80))
	for _, l := range catalog.All() {
		p := byLevel[l.ID]
		mark, best, first := "", "", ""
		if p.Solved {
			solved++
			xp += l.XPReward
			mana += l.ManaReward
			mark = "✓"
			best = p.BestElapsed.Round(time.Millisecond).String()
			first = p.FirstSolvedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("%-4d %-28s %-8s %-9d %-10s %s\n", l.Number, truncate(l.Title, 27), mark, p.Attempts, best, first)
	}
	fmt.Printf("\n%d/%d levels solved | %d XP | %d mana\n", solved, len(catalog.All()), xp, mana)
	return nil
}
