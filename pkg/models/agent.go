package models

import "errors"

var (
	errToolName  = errors.New("tool requires a name")
	errToolInput = errors.New("tool input schema must be a record or none")
)

// Agent is an autonomous worker that acts on eligible tasks during a turn.
// Agents are stateless with respect to scheduling; any conversational
// memory beyond the shared turn history is internal to the backend.
type Agent struct {
	// Name uniquely identifies the agent within a flow.
	Name string `json:"name"`
	// Description is an optional short summary shown to other agents.
	Description string `json:"description,omitempty"`
	// Instructions is persistent guidance included in every turn view.
	Instructions string `json:"instructions,omitempty"`
	// Tools are callable schemas this agent may use on any task.
	Tools []Tool `json:"tools,omitempty"`
	// Model is an opaque reference to the backing model. The core never
	// interprets it; backends may.
	Model string `json:"model,omitempty"`
}

// Tool declares a callable available to agents. The implementation lives
// behind the tool collaborator; the core only knows the schema.
type Tool struct {
	// Name uniquely identifies the tool.
	Name string `json:"name"`
	// Description tells agents what the tool does.
	Description string `json:"description,omitempty"`
	// Input declares the argument schema. Must be a record type (or none
	// for tools that take no arguments).
	Input ResultType `json:"input"`
}

// Check validates the tool declaration.
func (t Tool) Check() error {
	if t.Name == "" {
		return errToolName
	}
	if t.Input.Kind != KindRecord && t.Input.Kind != KindNone {
		return errToolInput
	}
	return t.Input.Check()
}
