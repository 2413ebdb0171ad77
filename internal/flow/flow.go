// Package flow holds the execution context for one orchestrated task
// graph: the task arena, the shared turn history, and the instruction
// stack. A Flow owns its tasks and history for its lifetime; only the
// orchestrator and turn executor mutate it, never concurrently.
package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thomascherickal/agentflow/pkg/models"
)

// Flow is a single execution context for an orchestrated task graph.
type Flow struct {
	mu sync.RWMutex

	id   string
	name string

	// tasks is the arena: a flat mapping from id to task. Dependencies
	// are id references, never direct ownership links.
	tasks map[string]*models.Task
	// order preserves insertion order for deterministic tie-breaking.
	order []string

	history []models.HistoryEntry
	seq     int

	// instructions is the ambient instruction stack, scoped to the flow.
	instructions []string

	// context holds shared values visible to all agents in the flow.
	context map[string]any

	// result is the flow's return expression: a literal or a reference
	// to a task whose result becomes the flow result.
	result models.ContextValue
}

// New creates an empty flow with the given name.
func New(name string) *Flow {
	return &Flow{
		id:      uuid.NewString(),
		name:    name,
		tasks:   make(map[string]*models.Task),
		context: make(map[string]any),
	}
}

// ID returns the flow's unique identifier.
func (f *Flow) ID() string { return f.id }

// Name returns the flow's name.
func (f *Flow) Name() string { return f.name }

// AddTask registers a task with the flow and returns its id. Dependencies
// are derived from context references and merged with any explicit
// DependsOn entries. Cycle detection happens at graph build, not here.
func (f *Flow) AddTask(t *models.Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()[:8]
	}
	if _, exists := f.tasks[t.ID]; exists {
		return "", Errorf(KindConfiguration, "duplicate task id %q", t.ID)
	}
	if t.Objective == "" {
		return "", Errorf(KindConfiguration, "task %q requires an objective", t.ID)
	}
	if err := t.ResultType.Check(); err != nil {
		return "", NewTaskError(KindConfiguration, t.ID, fmt.Errorf("result type: %w", err))
	}
	for _, tool := range t.Tools {
		if err := tool.Check(); err != nil {
			return "", NewTaskError(KindConfiguration, t.ID, fmt.Errorf("tool %q: %w", tool.Name, err))
		}
	}

	// Merge context references into depends_on without duplicates.
	deps := make(map[string]bool, len(t.DependsOn))
	for _, id := range t.DependsOn {
		deps[id] = true
	}
	for _, cv := range t.Context {
		if cv.IsRef() {
			deps[cv.TaskID] = true
		}
	}
	t.DependsOn = t.DependsOn[:0]
	for _, id := range f.order {
		if deps[id] {
			t.DependsOn = append(t.DependsOn, id)
			delete(deps, id)
		}
	}
	// References to tasks not yet registered keep their literal order;
	// graph build rejects any that never materialize.
	for id := range deps {
		t.DependsOn = append(t.DependsOn, id)
	}

	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t.ID, nil
}

// Task returns the task with the given id, or nil.
func (f *Flow) Task(id string) *models.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tasks[id]
}

// Tasks returns all tasks in insertion order.
func (f *Flow) Tasks() []*models.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*models.Task, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.tasks[id])
	}
	return out
}

// Len returns the number of registered tasks.
func (f *Flow) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// AppendHistory appends an entry to the turn history, assigning its
// sequence number and timestamp. Entries are totally ordered; the flow
// has a single writer by construction.
func (f *Flow) AppendHistory(e models.HistoryEntry) models.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.Seq = f.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	f.history = append(f.history, e)
	return e
}

// History returns a copy of the turn history.
func (f *Flow) History() []models.HistoryEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.HistoryEntry, len(f.history))
	copy(out, f.history)
	return out
}

// PushInstruction pushes an ambient instruction onto the stack and
// returns a pop function. Callers defer the pop so the stack is restored
// on block exit even under failure.
func (f *Flow) PushInstruction(text string) func() {
	f.mu.Lock()
	f.instructions = append(f.instructions, text)
	depth := len(f.instructions)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if len(f.instructions) >= depth {
				f.instructions = f.instructions[:depth-1]
			}
		})
	}
}

// Instructions returns a copy of the current instruction stack, bottom
// first.
func (f *Flow) Instructions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.instructions))
	copy(out, f.instructions)
	return out
}

// UnwindInstructions empties the instruction stack. Used on cancellation.
func (f *Flow) UnwindInstructions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions = nil
}

// SetContext stores a shared context value visible to all agents.
func (f *Flow) SetContext(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.context[key] = value
}

// ContextValues returns a copy of the shared context.
func (f *Flow) ContextValues() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]any, len(f.context))
	for k, v := range f.context {
		out[k] = v
	}
	return out
}

// SetResult sets the flow's return expression.
func (f *Flow) SetResult(cv models.ContextValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = cv
}

// Result returns the flow's return expression.
func (f *Flow) Result() models.ContextValue {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.result
}
