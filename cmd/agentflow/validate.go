package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thomascherickal/agentflow/internal/flowfile"
	"github.com/thomascherickal/agentflow/internal/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flowfile>",
	Short: "Check a flow file without running it",
	Long: `Validate parses and compiles a flow file: result type
declarations, agent references, context references, and the dependency
graph (including cycles) are all checked. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		f, err := flowfile.Load(path)
		if err != nil {
			return err
		}
		fl, agents, err := f.Compile()
		if err != nil {
			return err
		}
		if _, err := graph.Build(fl); err != nil {
			return err
		}

		fmt.Printf("%s %s: %d task(s), %d agent(s)\n",
			color.GreenString("✓"), fl.Name(), fl.Len(), len(agents))
		for _, t := range fl.Tasks() {
			line := fmt.Sprintf("  %s  %s", t.ID, t.Objective)
			if len(t.DependsOn) > 0 {
				line += fmt.Sprintf("  (after %v)", t.DependsOn)
			}
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}
