package models

import "time"

// HistoryKind classifies an entry in the shared turn history.
type HistoryKind string

const (
	// HistoryMessage is a message posted by an agent.
	HistoryMessage HistoryKind = "message"
	// HistoryToolCall records a tool invocation request.
	HistoryToolCall HistoryKind = "tool_call"
	// HistoryToolResult records a tool's return value or error.
	HistoryToolResult HistoryKind = "tool_result"
	// HistoryUserInput records text fetched from a human.
	HistoryUserInput HistoryKind = "user_input"
	// HistoryFeedback records validation feedback surfaced to an agent.
	HistoryFeedback HistoryKind = "feedback"
	// HistoryTaskResult records a task reaching a terminal state.
	HistoryTaskResult HistoryKind = "task_result"
)

// HistoryEntry is one record in a flow's append-only turn history.
// Entries are totally ordered by Seq, assigned by the flow.
type HistoryEntry struct {
	// Seq is the position in the history, starting at 1.
	Seq int `json:"seq"`
	// Kind classifies the entry.
	Kind HistoryKind `json:"kind"`
	// Agent names the agent that produced the entry, if any.
	Agent string `json:"agent,omitempty"`
	// TaskID links the entry to a task, if any.
	TaskID string `json:"task_id,omitempty"`
	// Content is the human-readable body of the entry.
	Content string `json:"content,omitempty"`
	// Value carries structured data (tool args or results, task results).
	Value any `json:"value,omitempty"`
	// IsError flags tool results that represent failures.
	IsError bool `json:"is_error,omitempty"`
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}
