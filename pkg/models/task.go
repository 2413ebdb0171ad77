// Package models defines the shared data model for agentflow: tasks,
// agents, result types, agent actions, and the turn history.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is part of an in-flight agent turn.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSuccessful indicates the task completed with a validated result.
	TaskStatusSuccessful TaskStatus = "successful"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was skipped because an upstream
	// dependency failed or the flow was cancelled.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSuccessful, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccessful, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// ErrIllegalTransition indicates a task state transition that the state
// machine does not permit. This is a programming-error class failure and
// callers must treat it as fatal.
var ErrIllegalTransition = errors.New("illegal task state transition")

// ContextValue is a single entry in a task's context: either a literal
// value or a reference to another task's result.
type ContextValue struct {
	// Literal is the inline value, used when TaskID is empty.
	Literal any `json:"literal,omitempty"`
	// TaskID references another task whose result supplies this value.
	TaskID string `json:"task_id,omitempty"`
}

// IsRef returns true if the entry references another task's result.
func (v ContextValue) IsRef() bool {
	return v.TaskID != ""
}

// Literal wraps an inline value as a context entry.
func Literal(v any) ContextValue {
	return ContextValue{Literal: v}
}

// Ref creates a context entry that resolves to another task's result.
func Ref(taskID string) ContextValue {
	return ContextValue{TaskID: taskID}
}

// Task represents a unit of work in a flow.
type Task struct {
	// ID is the unique identifier for this task within its flow.
	ID string `json:"id"`
	// Objective is the human-readable description of the required result.
	Objective string `json:"objective"`
	// Instructions are detailed directions for completing the task.
	Instructions string `json:"instructions,omitempty"`
	// ResultType declares the schema the task's result must satisfy.
	ResultType ResultType `json:"result_type"`
	// Context maps names to literal values or references to other tasks'
	// results. Task references become dependency edges.
	Context map[string]ContextValue `json:"context,omitempty"`
	// Agents lists the names of agents eligible to act on this task, in
	// declaration order. Empty means the flow's default agent.
	Agents []string `json:"agents,omitempty"`
	// Tools are callable schemas available while this task is active.
	Tools []Tool `json:"tools,omitempty"`
	// UserAccess indicates the task may solicit human input.
	UserAccess bool `json:"user_access,omitempty"`
	// DependsOn lists task IDs that must succeed before this task runs.
	// It is derived from Context references plus explicit entries.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state-machine value.
	Status TaskStatus `json:"status"`
	// Result holds the validated result. Set only on successful tasks,
	// immutable once set.
	Result any `json:"result,omitempty"`
	// Error is the failure or skip cause, if any.
	Error string `json:"error,omitempty"`
	// TurnBudget caps the number of turns this task may consume. Zero
	// means the flow default applies.
	TurnBudget int `json:"turn_budget,omitempty"`
	// Turns is the number of turns this task has consumed so far.
	Turns int `json:"turns,omitempty"`
	// CreatedAt is when the task was registered.
	CreatedAt time.Time `json:"created_at"`
}

// FriendlyName returns a short identifier with a truncated objective,
// used in feedback and error messages.
func (t *Task) FriendlyName() string {
	objective := t.Objective
	if len(objective) > 50 {
		objective = objective[:50] + "..."
	}
	return fmt.Sprintf("Task %s (%q)", t.ID, objective)
}

// legalTransitions enumerates every permitted state change.
var legalTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusRunning, TaskStatusSkipped},
	// A turn that ends without a terminal decision returns the task to
	// pending so it stays eligible for future turns.
	TaskStatusRunning: {TaskStatusPending, TaskStatusSuccessful, TaskStatusFailed, TaskStatusSkipped},
}

// CanTransition reports whether moving to the given status is legal.
func (t *Task) CanTransition(to TaskStatus) bool {
	for _, s := range legalTransitions[t.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the task to a new status, enforcing the state machine.
// Terminal states are final: once entered, Result and Error never change.
func (t *Task) Transition(to TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, to)
	}
	if !t.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrIllegalTransition, t.Status, to, t.FriendlyName())
	}
	t.Status = to
	return nil
}

// MarkSuccessful transitions the task to successful and records the
// already-validated result.
func (t *Task) MarkSuccessful(result any) error {
	if err := t.Transition(TaskStatusSuccessful); err != nil {
		return err
	}
	t.Result = result
	return nil
}

// MarkFailed transitions the task to failed with the given cause.
func (t *Task) MarkFailed(cause string) error {
	if err := t.Transition(TaskStatusFailed); err != nil {
		return err
	}
	t.Error = cause
	return nil
}

// MarkSkipped transitions the task to skipped with the given cause.
func (t *Task) MarkSkipped(cause string) error {
	if err := t.Transition(TaskStatusSkipped); err != nil {
		return err
	}
	t.Error = cause
	return nil
}

// Incomplete returns true if the task has not reached a terminal state.
func (t *Task) Incomplete() bool {
	return !t.Status.Terminal()
}
