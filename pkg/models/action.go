package models

import "fmt"

// ActionType identifies the kind of action an agent took during a turn.
// The set is closed; the executor handles every member exhaustively.
type ActionType string

const (
	// ActionPostMessage posts a message to the shared turn history.
	ActionPostMessage ActionType = "post_message"
	// ActionCallTool invokes a named tool with arguments.
	ActionCallTool ActionType = "call_tool"
	// ActionMarkSuccessful marks a task successful with a result payload.
	ActionMarkSuccessful ActionType = "mark_successful"
	// ActionMarkFailed marks a task failed with a reason.
	ActionMarkFailed ActionType = "mark_failed"
	// ActionRequestUserInput solicits text from a human.
	ActionRequestUserInput ActionType = "request_user_input"
)

// Action is the tagged result of one agent turn. Exactly the fields for
// its Type are meaningful.
type Action struct {
	Type ActionType `json:"type"`

	// Message is the posted text for ActionPostMessage.
	Message string `json:"message,omitempty"`

	// ToolName and ToolArgs describe the call for ActionCallTool.
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`

	// TaskID targets a task for mark-successful, mark-failed, and
	// request-user-input actions.
	TaskID string `json:"task_id,omitempty"`

	// Payload is the candidate result for ActionMarkSuccessful.
	Payload any `json:"payload,omitempty"`

	// Reason is the failure cause for ActionMarkFailed.
	Reason string `json:"reason,omitempty"`

	// Prompt is the question shown to the human for ActionRequestUserInput.
	Prompt string `json:"prompt,omitempty"`
}

// PostMessage builds a post-message action.
func PostMessage(text string) Action {
	return Action{Type: ActionPostMessage, Message: text}
}

// CallTool builds a call-tool action.
func CallTool(name string, args map[string]any) Action {
	return Action{Type: ActionCallTool, ToolName: name, ToolArgs: args}
}

// MarkSuccessful builds a mark-successful action.
func MarkSuccessful(taskID string, payload any) Action {
	return Action{Type: ActionMarkSuccessful, TaskID: taskID, Payload: payload}
}

// MarkFailed builds a mark-failed action.
func MarkFailed(taskID, reason string) Action {
	return Action{Type: ActionMarkFailed, TaskID: taskID, Reason: reason}
}

// RequestUserInput builds a request-user-input action.
func RequestUserInput(taskID, prompt string) Action {
	return Action{Type: ActionRequestUserInput, TaskID: taskID, Prompt: prompt}
}

// String returns a short description for logs.
func (a Action) String() string {
	switch a.Type {
	case ActionPostMessage:
		return "post_message"
	case ActionCallTool:
		return fmt.Sprintf("call_tool(%s)", a.ToolName)
	case ActionMarkSuccessful:
		return fmt.Sprintf("mark_successful(%s)", a.TaskID)
	case ActionMarkFailed:
		return fmt.Sprintf("mark_failed(%s)", a.TaskID)
	case ActionRequestUserInput:
		return fmt.Sprintf("request_user_input(%s)", a.TaskID)
	default:
		return "unknown"
	}
}
