// Package executor drives one interaction cycle between an agent and the
// tasks it is eligible to act on. It builds the agent's view, hands it to
// the opaque turn collaborator exactly once, interprets the returned
// action, and applies validation and state transitions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/internal/graph"
	"github.com/thomascherickal/agentflow/internal/schema"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// TurnBudgetExceeded is the failure cause recorded when a task runs out
// of turns. It is the primary guard against an agent that never finishes.
const TurnBudgetExceeded = "turn budget exceeded"

// TurnRunner is the external agent-turn collaborator. It may block on a
// model call; the executor applies the configured deadline. Errors are
// transport-kind failures, retried up to the turn budget.
type TurnRunner interface {
	PerformTurn(ctx context.Context, view TurnView) (models.Action, error)
}

// ToolInvoker is the external tool collaborator. The executor validates
// arguments against the declared schema before invoking.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// UserInput is the external human-interaction collaborator. Fetch may
// block until the human responds or the deadline passes.
type UserInput interface {
	Available() bool
	Fetch(ctx context.Context, prompt string) (string, error)
}

// Config holds executor settings.
type Config struct {
	// Runner performs agent turns. Required.
	Runner TurnRunner
	// Tools invokes tools by name. Optional; tool calls fail as feedback
	// when unset.
	Tools ToolInvoker
	// User fetches human input. Optional; requests fail as feedback when
	// unset.
	User UserInput
	// TurnBudget caps turns per task when the task declares none.
	TurnBudget int
	// TurnTimeout bounds each PerformTurn call. Zero means no deadline.
	TurnTimeout time.Duration
	// UserInputTimeout bounds each Fetch call. Zero means no deadline.
	UserInputTimeout time.Duration
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...any)
}

// defaultTurnBudget applies when neither the task nor the config sets one.
const defaultTurnBudget = 10

// Executor runs agent turns against a flow.
type Executor struct {
	runner           TurnRunner
	tools            ToolInvoker
	user             UserInput
	turnBudget       int
	turnTimeout      time.Duration
	userInputTimeout time.Duration
	debugLog         func(format string, args ...any)
}

// New creates an Executor from the given config.
func New(cfg Config) (*Executor, error) {
	if cfg.Runner == nil {
		return nil, errors.New("executor requires a turn runner")
	}
	budget := cfg.TurnBudget
	if budget <= 0 {
		budget = defaultTurnBudget
	}
	debugLog := cfg.DebugLog
	if debugLog == nil {
		debugLog = func(format string, args ...any) {}
	}
	return &Executor{
		runner:           cfg.Runner,
		tools:            cfg.Tools,
		user:             cfg.User,
		turnBudget:       budget,
		turnTimeout:      cfg.TurnTimeout,
		userInputTimeout: cfg.UserInputTimeout,
		debugLog:         debugLog,
	}, nil
}

// TurnOutcome summarizes one completed turn.
type TurnOutcome struct {
	// Agent is the acting agent's name.
	Agent string
	// Action is what the agent did, zero-valued when the turn failed in
	// transport.
	Action models.Action
	// Terminal lists task ids that reached a terminal state this turn,
	// including budget-forced failures.
	Terminal []string
	// TransportErr is set when the collaborator call failed or timed
	// out. The turn still counts against each task's budget.
	TransportErr error
}

// budgetFor returns the effective turn budget for a task.
func (e *Executor) budgetFor(t *models.Task) int {
	if t.TurnBudget > 0 {
		return t.TurnBudget
	}
	return e.turnBudget
}

// RunTurn executes exactly one turn of the given agent against its
// eligible tasks. Eligible tasks must be pending with resolved contexts;
// they are held in running for the duration of the turn and returned to
// pending unless the agent made a terminal decision. The returned error
// is reserved for programming errors; transport failures are reported in
// the outcome.
func (e *Executor) RunTurn(ctx context.Context, agent models.Agent, tasks []*models.Task, g *graph.Graph, fl *flow.Flow) (TurnOutcome, error) {
	outcome := TurnOutcome{Agent: agent.Name}

	for _, t := range tasks {
		if err := t.Transition(models.TaskStatusRunning); err != nil {
			return outcome, err
		}
		t.Turns++
	}

	view := e.buildView(agent, tasks, g, fl)

	turnCtx := ctx
	if e.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, e.turnTimeout)
		defer cancel()
	}

	action, err := e.runner.PerformTurn(turnCtx, view)
	if err != nil {
		// Transport failure: the turn counts, the tasks stay eligible
		// until their budgets run out.
		e.debugLog("[executor] turn failed for agent %s: %v", agent.Name, err)
		outcome.TransportErr = flow.NewError(flow.KindTransport, err)
	} else {
		outcome.Action = action
		if err := e.handleAction(ctx, agent, action, tasks, g, fl); err != nil {
			return outcome, err
		}
	}

	// Release tasks the agent did not finish, enforcing budgets.
	for _, t := range tasks {
		if t.Status.Terminal() {
			outcome.Terminal = append(outcome.Terminal, t.ID)
			continue
		}
		if t.Turns >= e.budgetFor(t) {
			cause := TurnBudgetExceeded
			if outcome.TransportErr != nil {
				cause = fmt.Sprintf("%s: last transport error: %v", TurnBudgetExceeded, outcome.TransportErr)
			}
			if err := t.MarkFailed(cause); err != nil {
				return outcome, err
			}
			e.debugLog("[executor] task %s failed: %s after %d turns", t.ID, TurnBudgetExceeded, t.Turns)
			outcome.Terminal = append(outcome.Terminal, t.ID)
			continue
		}
		if err := t.Transition(models.TaskStatusPending); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// handleAction interprets the agent's action. The action set is closed;
// every member is handled here.
func (e *Executor) handleAction(ctx context.Context, agent models.Agent, action models.Action, tasks []*models.Task, g *graph.Graph, fl *flow.Flow) error {
	switch action.Type {
	case models.ActionPostMessage:
		fl.AppendHistory(models.HistoryEntry{
			Kind:    models.HistoryMessage,
			Agent:   agent.Name,
			Content: action.Message,
		})
		return nil

	case models.ActionCallTool:
		e.callTool(ctx, agent, action, tasks, fl)
		return nil

	case models.ActionMarkSuccessful:
		return e.markSuccessful(agent, action, tasks, g, fl)

	case models.ActionMarkFailed:
		return e.markFailed(agent, action, tasks, fl)

	case models.ActionRequestUserInput:
		e.requestUserInput(ctx, agent, action, tasks, fl)
		return nil

	default:
		// The variant set is closed; an unknown tag is a collaborator
		// bug surfaced as feedback rather than a crash.
		e.feedback(fl, agent.Name, "", fmt.Sprintf("unknown action type %q", action.Type))
		return nil
	}
}

// eligible returns the targeted task if it is part of this turn.
func eligible(tasks []*models.Task, id string) *models.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (e *Executor) markSuccessful(agent models.Agent, action models.Action, tasks []*models.Task, g *graph.Graph, fl *flow.Flow) error {
	t := eligible(tasks, action.TaskID)
	if t == nil {
		e.feedback(fl, agent.Name, action.TaskID, fmt.Sprintf("task %q is not part of this turn and cannot be marked successful", action.TaskID))
		return nil
	}

	// A task cannot succeed while an upstream dependency is unfinished.
	if incomplete := incompleteUpstreams(t, fl); len(incomplete) > 0 {
		e.feedback(fl, agent.Name, t.ID, fmt.Sprintf("%s cannot be marked successful until its dependencies complete: %v", t.FriendlyName(), incomplete))
		return nil
	}

	value, err := schema.Validate(action.Payload, t.ResultType)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			// Feedback, not failure: the agent may retry within its
			// remaining budget.
			e.feedback(fl, agent.Name, t.ID, fmt.Sprintf("result for %s rejected: %v (expected %s)", t.FriendlyName(), verr, t.ResultType))
			return nil
		}
		return err
	}

	if err := t.MarkSuccessful(value); err != nil {
		return err
	}
	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryTaskResult,
		Agent:   agent.Name,
		TaskID:  t.ID,
		Content: fmt.Sprintf("%s marked successful by %s", t.FriendlyName(), agent.Name),
		Value:   value,
	})
	e.debugLog("[executor] task %s successful", t.ID)
	return nil
}

func (e *Executor) markFailed(agent models.Agent, action models.Action, tasks []*models.Task, fl *flow.Flow) error {
	t := eligible(tasks, action.TaskID)
	if t == nil {
		e.feedback(fl, agent.Name, action.TaskID, fmt.Sprintf("task %q is not part of this turn and cannot be marked failed", action.TaskID))
		return nil
	}

	reason := action.Reason
	if reason == "" {
		reason = "marked failed by agent"
	}
	if err := t.MarkFailed(reason); err != nil {
		return err
	}
	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryTaskResult,
		Agent:   agent.Name,
		TaskID:  t.ID,
		Content: fmt.Sprintf("%s marked failed by %s: %s", t.FriendlyName(), agent.Name, reason),
		IsError: true,
	})
	e.debugLog("[executor] task %s failed: %s", t.ID, reason)
	return nil
}

func (e *Executor) callTool(ctx context.Context, agent models.Agent, action models.Action, tasks []*models.Task, fl *flow.Flow) {
	tool, ok := findTool(agent, tasks, action.ToolName)
	if !ok {
		e.feedback(fl, agent.Name, "", fmt.Sprintf("tool %q is not available in this turn", action.ToolName))
		return
	}

	// Check arguments against the declared schema before invoking.
	var args any
	if len(action.ToolArgs) > 0 {
		args = map[string]any(action.ToolArgs)
	}
	validated, err := schema.Validate(args, tool.Input)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			e.feedback(fl, agent.Name, "", fmt.Sprintf("arguments for tool %q rejected: %v", tool.Name, verr))
			return
		}
		e.feedback(fl, agent.Name, "", fmt.Sprintf("arguments for tool %q rejected: %v", tool.Name, err))
		return
	}

	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryToolCall,
		Agent:   agent.Name,
		Content: tool.Name,
		Value:   validated,
	})

	if e.tools == nil {
		fl.AppendHistory(models.HistoryEntry{
			Kind:    models.HistoryToolResult,
			Agent:   agent.Name,
			Content: fmt.Sprintf("tool %q: no tool invoker configured", tool.Name),
			IsError: true,
		})
		return
	}

	result, err := e.tools.Invoke(ctx, tool.Name, action.ToolArgs)
	if err != nil {
		fl.AppendHistory(models.HistoryEntry{
			Kind:    models.HistoryToolResult,
			Agent:   agent.Name,
			Content: fmt.Sprintf("tool %q failed: %v", tool.Name, err),
			IsError: true,
		})
		return
	}
	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryToolResult,
		Agent:   agent.Name,
		Content: tool.Name,
		Value:   result,
	})
}

func (e *Executor) requestUserInput(ctx context.Context, agent models.Agent, action models.Action, tasks []*models.Task, fl *flow.Flow) {
	t := eligible(tasks, action.TaskID)
	if t == nil {
		e.feedback(fl, agent.Name, action.TaskID, fmt.Sprintf("task %q is not part of this turn", action.TaskID))
		return
	}
	if !t.UserAccess {
		e.feedback(fl, agent.Name, t.ID, fmt.Sprintf("%s does not allow user input", t.FriendlyName()))
		return
	}
	if e.user == nil || !e.user.Available() {
		e.feedback(fl, agent.Name, t.ID, "no user input is available")
		return
	}

	fetchCtx := ctx
	if e.userInputTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.userInputTimeout)
		defer cancel()
	}

	text, err := e.user.Fetch(fetchCtx, action.Prompt)
	if err != nil {
		// Deadline or transport failure: a turn failure, not a flow
		// failure. The budget counter already advanced for this turn.
		e.feedback(fl, agent.Name, t.ID, fmt.Sprintf("user input failed: %v", err))
		return
	}
	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryUserInput,
		Agent:   agent.Name,
		TaskID:  t.ID,
		Content: text,
	})
}

// feedback appends a validation-feedback entry for the acting agent.
func (e *Executor) feedback(fl *flow.Flow, agent, taskID, msg string) {
	e.debugLog("[executor] feedback for %s: %s", agent, msg)
	fl.AppendHistory(models.HistoryEntry{
		Kind:    models.HistoryFeedback,
		Agent:   agent,
		TaskID:  taskID,
		Content: msg,
		IsError: true,
	})
}

// incompleteUpstreams returns dependency ids that have not reached a
// terminal state.
func incompleteUpstreams(t *models.Task, fl *flow.Flow) []string {
	var out []string
	for _, depID := range t.DependsOn {
		if dep := fl.Task(depID); dep != nil && dep.Incomplete() {
			out = append(out, depID)
		}
	}
	return out
}

// findTool resolves a tool name against the union of the agent's tools
// and the eligible tasks' tools. Agent tools win on name collision.
func findTool(agent models.Agent, tasks []*models.Task, name string) (models.Tool, bool) {
	for _, tool := range agent.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	for _, t := range tasks {
		for _, tool := range t.Tools {
			if tool.Name == name {
				return tool, true
			}
		}
	}
	return models.Tool{}, false
}
