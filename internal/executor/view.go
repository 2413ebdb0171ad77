package executor

import (
	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/internal/graph"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// TaskView is one task as shown to an agent.
type TaskView struct {
	ID           string                 `json:"id"`
	Objective    string                 `json:"objective"`
	Instructions string                 `json:"instructions,omitempty"`
	ResultType   models.ResultType      `json:"result_type"`
	// Context holds the resolved context values for ready tasks.
	Context    map[string]any    `json:"context,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Agents     []string          `json:"agents,omitempty"`
	UserAccess bool              `json:"user_access,omitempty"`
	Status     models.TaskStatus `json:"status"`
	// Result and Error are populated for terminal tasks shown as
	// workflow context.
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TurnView is everything an agent observes during one turn: the tasks it
// may act on, the rest of the workflow for context, ambient and personal
// instructions, available tools, and the shared history.
type TurnView struct {
	Agent models.Agent `json:"agent"`
	// ReadyTasks are the tasks this turn may act on.
	ReadyTasks []TaskView `json:"ready_tasks"`
	// OtherTasks are the remaining workflow tasks, shown for context
	// only; actions targeting them are rejected.
	OtherTasks []TaskView `json:"other_tasks,omitempty"`
	// Instructions is the ambient instruction stack, bottom first. The
	// agent's own persistent instructions are in Agent.Instructions.
	Instructions []string `json:"instructions,omitempty"`
	// Tools is the union of the agent's tools and the ready tasks'
	// tools, deduplicated by name.
	Tools []models.Tool `json:"tools,omitempty"`
	// History is the flow's shared turn history.
	History []models.HistoryEntry `json:"history,omitempty"`

	FlowName    string         `json:"flow_name"`
	FlowContext map[string]any `json:"flow_context,omitempty"`
}

// buildView assembles the agent's observable state for one turn.
func (e *Executor) buildView(agent models.Agent, tasks []*models.Task, g *graph.Graph, fl *flow.Flow) TurnView {
	view := TurnView{
		Agent:        agent,
		Instructions: fl.Instructions(),
		History:      fl.History(),
		FlowName:     fl.Name(),
		FlowContext:  fl.ContextValues(),
	}

	inTurn := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		inTurn[t.ID] = true
		tv := taskView(t)
		// Eligible tasks have resolvable contexts by construction.
		tv.Context = g.ResolveContext(t).Values
		view.ReadyTasks = append(view.ReadyTasks, tv)
	}

	for _, t := range fl.Tasks() {
		if inTurn[t.ID] {
			continue
		}
		view.OtherTasks = append(view.OtherTasks, taskView(t))
	}

	seen := make(map[string]bool)
	for _, tool := range agent.Tools {
		if !seen[tool.Name] {
			seen[tool.Name] = true
			view.Tools = append(view.Tools, tool)
		}
	}
	for _, t := range tasks {
		for _, tool := range t.Tools {
			if !seen[tool.Name] {
				seen[tool.Name] = true
				view.Tools = append(view.Tools, tool)
			}
		}
	}

	return view
}

func taskView(t *models.Task) TaskView {
	return TaskView{
		ID:           t.ID,
		Objective:    t.Objective,
		Instructions: t.Instructions,
		ResultType:   t.ResultType,
		DependsOn:    t.DependsOn,
		Agents:       t.Agents,
		UserAccess:   t.UserAccess,
		Status:       t.Status,
		Result:       t.Result,
		Error:        t.Error,
	}
}
