package main

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "Task-dependency orchestration for LLM agents",
	Long: `Agentflow runs workflows of dependent tasks through LLM agents.

A flow file declares agents and tasks: each task has an objective, a
typed result, and context values that may reference other tasks'
results. Agentflow resolves the dependency graph, hands ready tasks to
agents turn by turn, validates every result against its declared type,
and checkpoints progress so runs can be resumed.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine internals to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
