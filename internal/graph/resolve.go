package graph

import (
	"fmt"

	"github.com/thomascherickal/agentflow/pkg/models"
)

// ResolveState classifies the outcome of resolving a task's context.
type ResolveState int

const (
	// Resolved means every referenced task is successful and all values
	// are available.
	Resolved ResolveState = iota
	// Pending means at least one referenced task has not finished.
	Pending
	// Blocked means a referenced task failed or was skipped; the
	// dependent task must be skipped, not retried.
	Blocked
)

// Resolution is the result of ResolveContext.
type Resolution struct {
	State ResolveState
	// Values holds the resolved context when State is Resolved.
	Values map[string]any
	// BlockedBy names the failed or skipped upstream task when State is
	// Blocked.
	BlockedBy string
}

// ResolveContext resolves a task's declared context against current flow
// state. Literal entries pass through unchanged; task references require
// the referenced task to be successful. This is a pure function of flow
// state: it performs no transitions and never suspends.
func (g *Graph) ResolveContext(t *models.Task) Resolution {
	values := make(map[string]any, len(t.Context))

	// depends_on may include explicit edges that carry no context value;
	// check them all, not just context references.
	for _, depID := range t.DependsOn {
		dep := g.flow.Task(depID)
		switch dep.Status {
		case models.TaskStatusSuccessful:
		case models.TaskStatusFailed, models.TaskStatusSkipped:
			return Resolution{State: Blocked, BlockedBy: depID}
		default:
			return Resolution{State: Pending}
		}
	}

	for name, cv := range t.Context {
		if cv.IsRef() {
			values[name] = g.flow.Task(cv.TaskID).Result
		} else {
			values[name] = cv.Literal
		}
	}
	return Resolution{State: Resolved, Values: values}
}

// Ready returns pending tasks whose context resolves, in insertion order.
// Callers run PropagateSkips first so blocked tasks have already left the
// pending state.
func (g *Graph) Ready() []*models.Task {
	var ready []*models.Task
	for _, t := range g.flow.Tasks() {
		if t.Status != models.TaskStatusPending {
			continue
		}
		if g.ResolveContext(t).State == Resolved {
			g.debugLog("[graph.Ready] task %s: ready", t.ID)
			ready = append(ready, t)
		}
	}
	return ready
}

// PropagateSkips transitions every pending task with a failed or skipped
// upstream to skipped, repeating until no more change so failure
// propagates transitively through the graph. Returns the skipped tasks.
func (g *Graph) PropagateSkips() []*models.Task {
	var skipped []*models.Task
	for {
		changed := false
		for _, t := range g.flow.Tasks() {
			if t.Status != models.TaskStatusPending {
				continue
			}
			res := g.ResolveContext(t)
			if res.State != Blocked {
				continue
			}
			cause := fmt.Sprintf("dependency %s did not succeed", res.BlockedBy)
			if err := t.MarkSkipped(cause); err != nil {
				// pending -> skipped is always legal; a failure here is
				// a programming error.
				panic(err)
			}
			g.debugLog("[graph.PropagateSkips] task %s skipped: %s", t.ID, cause)
			skipped = append(skipped, t)
			changed = true
		}
		if !changed {
			return skipped
		}
	}
}

// Running reports whether any task is currently in the running state.
func (g *Graph) Running() bool {
	for _, t := range g.flow.Tasks() {
		if t.Status == models.TaskStatusRunning {
			return true
		}
	}
	return false
}
