package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thomascherickal/agentflow/internal/executor"
	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/internal/graph"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// defaultMaxIterations is the global run-loop ceiling. It is deliberately
// generous; per-task turn budgets are the primary liveness guard, this
// ceiling only catches a loop that makes no progress at all.
const defaultMaxIterations = 1000

// Checkpointer persists a flow snapshot after each completed turn.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, snap flow.Snapshot) error
}

// Config holds engine settings.
type Config struct {
	// Flow is the flow to run. Required.
	Flow *flow.Flow
	// Executor runs agent turns. Required.
	Executor *executor.Executor
	// Agents are the named agents tasks may reference.
	Agents []models.Agent
	// DefaultAgent acts on tasks that name no agents. Required when any
	// task leaves its agent list empty.
	DefaultAgent *models.Agent
	// Selector picks the acting agent per group. Defaults to round-robin.
	Selector AgentSelector
	// MaxIterations caps run-loop iterations. Zero means the default.
	MaxIterations int
	// Emitter receives run events. Optional.
	Emitter *EventEmitter
	// Checkpointer persists snapshots after each turn. Optional.
	Checkpointer Checkpointer
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...any)
}

// Engine drives a flow to completion.
type Engine struct {
	flow          *flow.Flow
	exec          *executor.Executor
	agents        map[string]models.Agent
	defaultAgent  *models.Agent
	selector      AgentSelector
	maxIterations int
	emitter       *EventEmitter
	checkpointer  Checkpointer
	debugLog      func(format string, args ...any)

	turns int
}

// New creates an Engine from the given config.
func New(cfg Config) (*Engine, error) {
	if cfg.Flow == nil {
		return nil, flow.Errorf(flow.KindConfiguration, "engine requires a flow")
	}
	if cfg.Executor == nil {
		return nil, flow.Errorf(flow.KindConfiguration, "engine requires an executor")
	}
	agents := make(map[string]models.Agent, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.Name == "" {
			return nil, flow.Errorf(flow.KindConfiguration, "agent with empty name")
		}
		if _, dup := agents[a.Name]; dup {
			return nil, flow.Errorf(flow.KindConfiguration, "duplicate agent name %q", a.Name)
		}
		agents[a.Name] = a
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewRoundRobinSelector()
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	debugLog := cfg.DebugLog
	if debugLog == nil {
		debugLog = func(format string, args ...any) {}
	}
	return &Engine{
		flow:          cfg.Flow,
		exec:          cfg.Executor,
		agents:        agents,
		defaultAgent:  cfg.DefaultAgent,
		selector:      selector,
		maxIterations: maxIter,
		emitter:       cfg.Emitter,
		checkpointer:  cfg.Checkpointer,
		debugLog:      debugLog,
	}, nil
}

func (e *Engine) emit(ev Event) {
	if e.emitter == nil {
		return
	}
	ev.Timestamp = time.Now()
	e.emitter.Emit(ev)
}

// eligibleAgents resolves a task's agent names against the registry,
// falling back to the default agent when the task names none.
func (e *Engine) eligibleAgents(t *models.Task) ([]models.Agent, error) {
	if len(t.Agents) == 0 {
		if e.defaultAgent == nil {
			return nil, flow.NewTaskError(flow.KindConfiguration, t.ID,
				fmt.Errorf("task names no agents and no default agent is configured"))
		}
		return []models.Agent{*e.defaultAgent}, nil
	}
	out := make([]models.Agent, 0, len(t.Agents))
	for _, name := range t.Agents {
		a, ok := e.agents[name]
		if !ok {
			return nil, flow.NewTaskError(flow.KindConfiguration, t.ID,
				fmt.Errorf("unknown agent %q", name))
		}
		out = append(out, a)
	}
	return out, nil
}

// taskGroup is a set of ready tasks sharing the same eligible-agent list.
type taskGroup struct {
	key      string
	eligible []models.Agent
	tasks    []*models.Task
}

// groupReady partitions ready tasks by eligible-agent identity, keeping
// the flow's insertion order both across and within groups.
func (e *Engine) groupReady(ready []*models.Task) ([]taskGroup, error) {
	var groups []taskGroup
	index := make(map[string]int)
	for _, t := range ready {
		eligible, err := e.eligibleAgents(t)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(eligible))
		for i, a := range eligible {
			names[i] = a.Name
		}
		key := groupKey(names)
		if i, ok := index[key]; ok {
			groups[i].tasks = append(groups[i].tasks, t)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, taskGroup{key: key, eligible: eligible, tasks: []*models.Task{t}})
	}
	return groups, nil
}

// Run drives the flow until every task is terminal, the context is
// cancelled, or the iteration ceiling is hit. The returned FlowResult is
// populated in every case, including failures.
func (e *Engine) Run(ctx context.Context) (FlowResult, error) {
	f := e.flow
	e.turns = 0

	g, err := graph.Build(f)
	if err != nil {
		return e.result(0, false), err
	}
	g.SetDebugLog(e.debugLog)

	// Surface agent wiring mistakes before any turn runs.
	for _, t := range f.Tasks() {
		if _, err := e.eligibleAgents(t); err != nil {
			return e.result(0, false), err
		}
	}

	e.emit(Event{Type: EventFlowStarted, Message: f.Name()})
	e.debugLog("[engine] flow %s started with %d tasks", f.Name(), f.Len())

	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			return e.cancel(ctx, iteration, err)
		}
		iteration++
		if iteration > e.maxIterations {
			err := flow.Errorf(flow.KindConvergence,
				"flow did not converge within %d iterations", e.maxIterations)
			e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
			return e.result(iteration-1, false), err
		}

		for _, t := range g.PropagateSkips() {
			e.emit(Event{Type: EventTaskTransition, TaskID: t.ID, Status: t.Status, Message: t.Error, Iteration: iteration})
		}

		ready := g.Ready()
		if len(ready) == 0 {
			return e.finish(g, iteration)
		}

		groups, err := e.groupReady(ready)
		if err != nil {
			e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
			return e.result(iteration, false), err
		}

		for _, grp := range groups {
			if err := ctx.Err(); err != nil {
				return e.cancel(ctx, iteration, err)
			}
			agent := e.selector.Next(grp.key, grp.eligible)
			e.emit(Event{Type: EventTurnStarted, Agent: agent.Name, Iteration: iteration,
				Message: fmt.Sprintf("%d task(s) ready", len(grp.tasks))})

			outcome, err := e.exec.RunTurn(ctx, agent, grp.tasks, g, f)
			if err != nil {
				e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
				return e.result(iteration, false), err
			}
			e.turns++

			for _, id := range outcome.Terminal {
				t := f.Task(id)
				e.emit(Event{Type: EventTaskTransition, TaskID: id, Agent: agent.Name,
					Status: t.Status, Message: t.Error, Iteration: iteration})
			}
			e.emit(Event{Type: EventTurnCompleted, Agent: agent.Name, Iteration: iteration,
				Error: outcome.TransportErr})
			if outcome.TransportErr != nil {
				e.debugLog("[engine] turn for %s failed in transport: %v", agent.Name, outcome.TransportErr)
			}

			if e.checkpointer != nil {
				if err := e.checkpointer.SaveCheckpoint(ctx, f.Snapshot()); err != nil {
					// Checkpointing is best-effort; a failed save must not
					// stop the flow.
					e.debugLog("[engine] checkpoint save failed: %v", err)
				}
			}
		}
	}
}

// cancel skips all remaining work, unwinds ambient instructions, and
// reports a cancellation error.
func (e *Engine) cancel(ctx context.Context, iteration int, cause error) (FlowResult, error) {
	for _, t := range e.flow.Tasks() {
		if t.Status.Terminal() {
			continue
		}
		if err := t.MarkSkipped("flow cancelled"); err != nil {
			e.debugLog("[engine] skip on cancel failed for %s: %v", t.ID, err)
			continue
		}
		e.emit(Event{Type: EventTaskTransition, TaskID: t.ID, Status: t.Status,
			Message: t.Error, Iteration: iteration})
	}
	e.flow.UnwindInstructions()
	err := flow.NewError(flow.KindCancellation, cause)
	e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
	return e.result(iteration, false), err
}

// finish resolves the terminal flow. When a result task is declared, the
// flow succeeds exactly when that task did; failures elsewhere in the
// graph are reported in the FlowResult but do not fail the flow. Without
// a declared result, any failed task fails the flow.
func (e *Engine) finish(g *graph.Graph, iteration int) (FlowResult, error) {
	// Nothing is ready, so a task still running means a turn left it
	// behind and the loop can make no further progress.
	if g.Running() {
		err := flow.Errorf(flow.KindConvergence, "no ready tasks while a task is still running")
		e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
		return e.result(iteration, false), err
	}

	var failed []*models.Task
	for _, t := range e.flow.Tasks() {
		switch t.Status {
		case models.TaskStatusFailed:
			failed = append(failed, t)
		case models.TaskStatusSuccessful, models.TaskStatusSkipped:
		default:
			// Nothing ready, nothing running, yet a task is not terminal:
			// the graph is wedged.
			err := flow.NewTaskError(flow.KindConvergence, t.ID,
				fmt.Errorf("task is %s but can never become ready", t.Status))
			e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
			return e.result(iteration, false), err
		}
	}

	if rt := e.flow.Task(e.flow.Result().TaskID); rt != nil {
		if rt.Status == models.TaskStatusSuccessful {
			failed = nil
		} else {
			failed = onResultPath(failed, rt, e.flow)
			if len(failed) == 0 {
				err := flow.NewTaskError(flow.KindTaskFailure, rt.ID,
					fmt.Errorf("result task %s was %s: %s", rt.FriendlyName(), rt.Status, rt.Error))
				e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
				return e.result(iteration, false), err
			}
		}
	}

	if len(failed) > 0 {
		parts := make([]string, len(failed))
		for i, t := range failed {
			parts[i] = fmt.Sprintf("%s: %s", t.FriendlyName(), t.Error)
		}
		err := flow.NewTaskError(flow.KindTaskFailure, failed[0].ID,
			fmt.Errorf("%d task(s) failed: %s", len(failed), strings.Join(parts, "; ")))
		e.emit(Event{Type: EventFlowFailed, Error: err, Iteration: iteration})
		return e.result(iteration, false), err
	}

	res := e.result(iteration, true)
	e.emit(Event{Type: EventFlowCompleted, Iteration: iteration})
	e.debugLog("[engine] flow %s completed in %d iterations, %d turns", e.flow.Name(), iteration, e.turns)
	return res, nil
}

// result assembles the FlowResult from the flow's current state.
func (e *Engine) result(iterations int, completed bool) FlowResult {
	f := e.flow
	res := FlowResult{
		FlowID:     f.ID(),
		Name:       f.Name(),
		Completed:  completed,
		Iterations: iterations,
		Turns:      e.turns,
	}
	for _, t := range f.Tasks() {
		switch t.Status {
		case models.TaskStatusFailed:
			res.Failed = append(res.Failed, t.ID)
		case models.TaskStatusSkipped:
			res.Skipped = append(res.Skipped, t.ID)
		}
	}
	if completed {
		res.Value = e.resolveValue(f.Result())
	}
	return res
}

// onResultPath keeps only the failed tasks the result task transitively
// depends on (the result task itself included).
func onResultPath(failed []*models.Task, rt *models.Task, f *flow.Flow) []*models.Task {
	path := map[string]bool{rt.ID: true}
	queue := []*models.Task{rt}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, depID := range cur.DependsOn {
			if path[depID] {
				continue
			}
			path[depID] = true
			if dep := f.Task(depID); dep != nil {
				queue = append(queue, dep)
			}
		}
	}
	var out []*models.Task
	for _, t := range failed {
		if path[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// resolveValue dereferences the flow's declared result.
func (e *Engine) resolveValue(cv models.ContextValue) any {
	if cv.TaskID != "" {
		if t := e.flow.Task(cv.TaskID); t != nil {
			return t.Result
		}
		return nil
	}
	return cv.Literal
}
