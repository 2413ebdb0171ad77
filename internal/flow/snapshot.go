package flow

import (
	"github.com/thomascherickal/agentflow/pkg/models"
)

// Snapshot is a serializable capture of a flow's state. The checkpoint
// store writes it as a unit: task set with status/result, turn history,
// and instruction stack together, never piecemeal.
type Snapshot struct {
	FlowID       string                 `json:"flow_id"`
	Name         string                 `json:"name"`
	Tasks        []models.Task          `json:"tasks"`
	History      []models.HistoryEntry  `json:"history"`
	Instructions []string               `json:"instructions"`
	Context      map[string]any         `json:"context,omitempty"`
	Result       models.ContextValue    `json:"result"`
}

// Snapshot captures the flow's current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tasks := make([]models.Task, 0, len(f.order))
	for _, id := range f.order {
		tasks = append(tasks, *f.tasks[id])
	}
	history := make([]models.HistoryEntry, len(f.history))
	copy(history, f.history)
	instructions := make([]string, len(f.instructions))
	copy(instructions, f.instructions)
	context := make(map[string]any, len(f.context))
	for k, v := range f.context {
		context[k] = v
	}

	return Snapshot{
		FlowID:       f.id,
		Name:         f.name,
		Tasks:        tasks,
		History:      history,
		Instructions: instructions,
		Context:      context,
		Result:       f.result,
	}
}

// Restore rebuilds a flow from a snapshot.
func Restore(snap Snapshot) *Flow {
	f := &Flow{
		id:      snap.FlowID,
		name:    snap.Name,
		tasks:   make(map[string]*models.Task, len(snap.Tasks)),
		context: make(map[string]any, len(snap.Context)),
		result:  snap.Result,
	}
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		f.tasks[t.ID] = &t
		f.order = append(f.order, t.ID)
	}
	f.history = append(f.history, snap.History...)
	if n := len(snap.History); n > 0 {
		f.seq = snap.History[n-1].Seq
	}
	f.instructions = append(f.instructions, snap.Instructions...)
	for k, v := range snap.Context {
		f.context[k] = v
	}
	return f
}
