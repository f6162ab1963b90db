package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/oracle/internal/llm"
)

var tutorCmd = &cobra.Command{
	Use:   "tutor",
	Short: "Inspect the LLM tutor configuration",
}

var tutorModelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List models available to a provider",
	Long: `List models for a provider. Ollama providers are queried live; others
show the models named in the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTutorModels,
}

func init() {
	rootCmd.AddCommand(tutorCmd)
	tutorCmd.AddCommand(tutorModelsCmd)
}

func runTutorModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := cfg.Tutor.Provider
	if len(args) == 1 {
		name = args[0]
	}
	provider, err := cfg.Provider(name)
	if err != nil {
		return err
	}

	if !provider.IsOllama() {
		roles := make([]string, 0, len(provider.Models))
		for role := range provider.Models {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Printf("%-10s %s\n", role, provider.Models[role])
		}
		return nil
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	client := llm.NewClient(provider.BaseURL, provider.APIKey, "", log)
	models, err := client.ListModels(context.Background())
	if err != nil {
		return err
	}
	tutorModel := cfg.TutorModel(provider)
	for _, m := range models {
		marker := " "
		if m.Name == tutorModel {
			marker = "*"
		}
		fmt.Printf("%s %-40s %6.1f GB\n", marker, m.Name, float64(m.Size)/1e9)
	}
	return nil
}
