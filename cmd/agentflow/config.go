package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thomascherickal/agentflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Config prints the merged configuration: built-in defaults,
the user config (` + "`~/.config/agentflow/config.yaml`" + `), any project
` + "`.agentflow/config.yaml`" + `, and environment overrides.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		apiKeyDisplay := "(not set)"
		if cfg.Anthropic.APIKey != "" {
			apiKeyDisplay = "****"
		}

		fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
		fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
		fmt.Printf("bedrock.enabled: %t\n", cfg.Bedrock.Enabled)
		fmt.Printf("bedrock.region: %s\n", cfg.Bedrock.Region)
		fmt.Printf("bedrock.profile: %s\n", cfg.Bedrock.Profile)
		fmt.Printf("defaults.turn_budget: %d\n", cfg.Defaults.TurnBudget)
		fmt.Printf("defaults.max_iterations: %d\n", cfg.Defaults.MaxIterations)
		fmt.Printf("timeouts.turn: %s\n", cfg.Timeouts.Turn)
		fmt.Printf("timeouts.user_input: %s\n", cfg.Timeouts.UserInput)
		fmt.Printf("retry.max_attempts: %d\n", cfg.Retry.MaxAttempts)
		fmt.Printf("retry.backoff: %s\n", cfg.Retry.Backoff)
		fmt.Printf("control.dir: %s\n", cfg.Control.Dir)
		fmt.Printf("state.db_path: %s\n", cfg.State.DBPath)

		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("\nproject config: %s\n", project)
		}
	},
}
