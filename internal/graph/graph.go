// Package graph provides dependency resolution over a flow's task arena.
// Tasks are nodes; edges are "depends on" id references. The graph is
// validated once at construction and consulted every orchestration cycle.
package graph

import (
	"errors"
	"fmt"

	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Graph wraps a flow's task set with dependency operations.
type Graph struct {
	flow *flow.Flow
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// Build validates the flow's task graph and returns a Graph over it.
// Unknown dependency references and cycles are configuration errors.
func Build(f *flow.Flow) (*Graph, error) {
	g := &Graph{
		flow:     f,
		debugLog: func(format string, args ...any) {},
	}

	tasks := f.Tasks()
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if f.Task(depID) == nil {
				return nil, flow.NewTaskError(flow.KindConfiguration, t.ID,
					fmt.Errorf("depends on unknown task %q", depID))
			}
		}
	}

	if g.hasCycle(tasks) {
		return nil, flow.NewError(flow.KindConfiguration, ErrCycleDetected)
	}

	return g, nil
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		g.debugLog = fn
	}
}

// hasCycle detects back edges with depth-first search coloring.
func (g *Graph) hasCycle(tasks []*models.Task) bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		t := g.flow.Task(id)
		for _, depID := range t.DependsOn {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, t := range tasks {
		if colors[t.ID] == 0 {
			if visit(t.ID) {
				return true
			}
		}
	}
	return false
}

// Dependents returns the ids of tasks that depend on the given task,
// in insertion order.
func (g *Graph) Dependents(taskID string) []string {
	var out []string
	for _, t := range g.flow.Tasks() {
		for _, depID := range t.DependsOn {
			if depID == taskID {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}
