package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thomascherickal/agentflow/internal/api"
	"github.com/thomascherickal/agentflow/internal/config"
	"github.com/thomascherickal/agentflow/internal/executor"
	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/internal/flowfile"
	"github.com/thomascherickal/agentflow/internal/orchestrator"
	"github.com/thomascherickal/agentflow/internal/state"
	"github.com/thomascherickal/agentflow/pkg/models"
)

var (
	runMaxIterations int
	runTurnBudget    int
	runControlDir    string
	runDBPath        string
	runResumeID      string
	runNoCheckpoint  bool
)

var runCmd = &cobra.Command{
	Use:   "run <flowfile>",
	Short: "Run a flow to completion",
	Long: `Run compiles the flow file, builds the dependency graph, and
drives it through agent turns until every task is terminal. Progress is
checkpointed to the state database after each turn; a previous run's
checkpoint can be resumed with --resume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlow(args[0])
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the run-loop iteration ceiling")
	runCmd.Flags().IntVar(&runTurnBudget, "turn-budget", 0, "Override the default per-task turn budget")
	runCmd.Flags().StringVar(&runControlDir, "control-dir", "", "Control directory for cancel signals and decisions.md")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Path to the state database")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "Resume from the checkpoint with this flow id")
	runCmd.Flags().BoolVar(&runNoCheckpoint, "no-checkpoint", false, "Disable checkpointing")
}

func runFlow(path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	def, err := flowfile.Load(path)
	if err != nil {
		return err
	}

	debugLog := func(format string, args ...any) {}
	if verbose {
		debugLog = log.Printf
	}

	// Out-of-band control: cancel file and durable decisions.
	var control *api.ControlWatcher
	if cfg.Control.Dir != "" {
		control, err = api.NewControlWatcher(cfg.Control.Dir)
		if err != nil {
			return fmt.Errorf("control dir: %w", err)
		}
		defer control.Close()
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Bedrock.Enabled,
		AWSRegion:     cfg.Bedrock.Region,
		AWSProfile:    cfg.Bedrock.Profile,
	})
	if err != nil {
		return err
	}
	runner := api.NewRunner(client, control)

	var db *state.DB
	if !runNoCheckpoint {
		db, err = openStateDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	ctx, cancel := signalContext(control)
	defer cancel()

	emitter := orchestrator.NewEventEmitter(256)
	defer emitter.Close()
	go printEvents(emitter.Events())

	factory := func() (*orchestrator.Engine, error) {
		return buildEngine(ctx, cfg, def, runner, db, emitter, debugLog)
	}

	policy := orchestrator.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		DebugLog:    debugLog,
	}

	start := time.Now()
	res, runErr := policy.Run(ctx, factory)
	elapsed := time.Since(start).Round(time.Second)

	if db != nil && res.FlowID != "" {
		rec := state.RunRecord{
			FlowID:     res.FlowID,
			Name:       res.Name,
			Completed:  res.Completed,
			Iterations: res.Iterations,
			Turns:      res.Turns,
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		if err := db.RecordRun(context.Background(), rec); err != nil {
			debugLog("[run] record run failed: %v", err)
		}
	}

	printResult(res, runErr, elapsed, client.Tracker())
	return runErr
}

// applyRunFlags merges command-line overrides into the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runMaxIterations > 0 {
		cfg.Defaults.MaxIterations = runMaxIterations
	}
	if runTurnBudget > 0 {
		cfg.Defaults.TurnBudget = runTurnBudget
	}
	if runControlDir != "" {
		cfg.Control.Dir = runControlDir
	}
	if runDBPath != "" {
		cfg.State.DBPath = runDBPath
	}
}

func openStateDB(cfg *config.Config) (*state.DB, error) {
	var db *state.DB
	var err error
	if cfg.State.DBPath != "" {
		db, err = state.Open(cfg.State.DBPath)
	} else {
		db, err = state.OpenProject(".")
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildEngine compiles (or restores) the flow and wires the engine for
// one attempt. The retry policy calls this fresh per attempt so a
// failed attempt's task state never leaks into the next.
func buildEngine(ctx context.Context, cfg *config.Config, def *flowfile.File, runner *api.Runner, db *state.DB, emitter *orchestrator.EventEmitter, debugLog func(string, ...any)) (*orchestrator.Engine, error) {
	fl, agents, err := def.Compile()
	if err != nil {
		return nil, err
	}

	if runResumeID != "" {
		if db == nil {
			return nil, fmt.Errorf("--resume requires checkpointing")
		}
		snap, err := db.LoadCheckpoint(ctx, runResumeID)
		if err != nil {
			return nil, err
		}
		fl = flow.Restore(snap)
		fmt.Printf("%s resuming flow %s (%s)\n", color.YellowString("↻"), snap.Name, snap.FlowID)
	}

	exec, err := executor.New(executor.Config{
		Runner:           runner,
		User:             newTerminalInput(),
		TurnBudget:       cfg.Defaults.TurnBudget,
		TurnTimeout:      cfg.Timeouts.Turn,
		UserInputTimeout: cfg.Timeouts.UserInput,
		DebugLog:         debugLog,
	})
	if err != nil {
		return nil, err
	}

	engineCfg := orchestrator.Config{
		Flow:          fl,
		Executor:      exec,
		Agents:        agents,
		MaxIterations: cfg.Defaults.MaxIterations,
		Emitter:       emitter,
		DebugLog:      debugLog,
	}
	if len(agents) > 0 {
		engineCfg.DefaultAgent = &agents[0]
	}
	if db != nil {
		engineCfg.Checkpointer = db
	}

	return orchestrator.New(engineCfg)
}

// signalContext returns a context cancelled by SIGINT/SIGTERM or by the
// control directory's cancel file.
func signalContext(control *api.ControlWatcher) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, color.YellowString("\ninterrupt received, cancelling flow"))
		cancel()
	}()

	if control != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if control.CancelRequested() {
						fmt.Fprintln(os.Stderr, color.YellowString("cancel signal received"))
						cancel()
						return
					}
				}
			}
		}()
	}

	return ctx, cancel
}

// printEvents streams run progress to stdout.
func printEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventFlowStarted:
			fmt.Printf("%s flow %s started\n", color.CyanString("▶"), ev.Message)
		case orchestrator.EventTurnStarted:
			fmt.Printf("  %s turn: %s (%s)\n", color.CyanString("·"), ev.Agent, ev.Message)
		case orchestrator.EventTaskTransition:
			printTransition(ev)
		}
	}
}

func printTransition(ev orchestrator.Event) {
	switch ev.Status {
	case models.TaskStatusSuccessful:
		fmt.Printf("  %s task %s successful\n", color.GreenString("✓"), ev.TaskID)
	case models.TaskStatusFailed:
		fmt.Printf("  %s task %s failed: %s\n", color.RedString("✗"), ev.TaskID, ev.Message)
	case models.TaskStatusSkipped:
		fmt.Printf("  %s task %s skipped: %s\n", color.YellowString("‒"), ev.TaskID, ev.Message)
	}
}

// printResult summarizes the finished run.
func printResult(res orchestrator.FlowResult, runErr error, elapsed time.Duration, tracker *api.TokenTracker) {
	fmt.Println()
	if runErr != nil {
		fmt.Printf("%s flow %s failed after %s: %v\n", color.RedString("✗"), res.Name, elapsed, runErr)
	} else {
		fmt.Printf("%s flow %s completed in %s\n", color.GreenString("✓"), res.Name, elapsed)
		if res.Value != nil {
			fmt.Printf("\nresult:\n%v\n", res.Value)
		}
	}
	in, out := tracker.Total()
	fmt.Printf("\n%d iteration(s), %d turn(s), %d API call(s), %d/%d tokens, ~$%.4f\n",
		res.Iterations, res.Turns, tracker.Calls(), in, out, tracker.Cost())
}
