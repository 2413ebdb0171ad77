// Package orchestrator coordinates agents over a flow's task graph. It
// owns the run loop: resolve ready tasks, pick an agent for each group,
// execute turns, and converge the flow to a result or a failure.
package orchestrator

import (
	"time"

	"github.com/thomascherickal/agentflow/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventFlowStarted indicates the run loop has begun.
	EventFlowStarted EventType = "flow_started"
	// EventFlowCompleted indicates the flow converged successfully.
	EventFlowCompleted EventType = "flow_completed"
	// EventFlowFailed indicates the flow terminated with a failure.
	EventFlowFailed EventType = "flow_failed"
	// EventTaskTransition indicates a task changed status.
	EventTaskTransition EventType = "task_transition"
	// EventTurnStarted indicates an agent turn is about to run.
	EventTurnStarted EventType = "turn_started"
	// EventTurnCompleted indicates an agent turn finished.
	EventTurnCompleted EventType = "turn_completed"
)

// Event represents an event emitted by the orchestrator. Subscribers
// (CLI progress output, checkpointing) receive these on a channel.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Agent is the name of the acting agent, if applicable.
	Agent string
	// Status is the task's status after a transition event.
	Status models.TaskStatus
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Iteration is the run-loop iteration the event occurred in.
	Iteration int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
