package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/thomascherickal/agentflow/internal/executor"
	"github.com/thomascherickal/agentflow/pkg/models"
)

const maxResponseTokens = 8192

// Runner performs agent turns against the Anthropic API. It implements
// the executor's turn collaborator: one API call per turn, first
// actionable block wins.
type Runner struct {
	client  *Client
	control *ControlWatcher
}

var _ executor.TurnRunner = (*Runner)(nil)

// NewRunner creates a turn runner backed by the given client. The
// control watcher is optional; when set, its decisions file is injected
// into every prompt.
func NewRunner(client *Client, control *ControlWatcher) *Runner {
	return &Runner{client: client, control: control}
}

// PerformTurn renders the view, makes one API call, and maps the
// response to an action. A response with no tool use becomes a posted
// message.
func (r *Runner) PerformTurn(ctx context.Context, view executor.TurnView) (models.Action, error) {
	systemPrompt := RenderSystemPrompt(view)
	if r.control != nil {
		if decisions := r.control.ReadDecisions(); decisions != "" {
			systemPrompt = fmt.Sprintf("%s\n\n## Project Decisions\n%s", systemPrompt, decisions)
		}
	}

	resp, err := r.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: maxResponseTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(renderThread(view))),
		},
		Tools: TurnTools(view),
	})
	if err != nil {
		return models.Action{}, fmt.Errorf("API call failed: %w", err)
	}

	r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	resultTypes := make(map[string]models.ResultType, len(view.ReadyTasks))
	for _, t := range view.ReadyTasks {
		resultTypes[t.ID] = t.ResultType
	}

	var textOutput string
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textOutput += variant.Text
		case anthropic.ToolUseBlock:
			return DecodeAction(variant.Name, variant.Input, resultTypes)
		}
	}

	return models.PostMessage(strings.TrimSpace(textOutput)), nil
}

// renderThread formats the turn history as the user message. The model
// sees the whole thread and is prompted for its next action.
func renderThread(view executor.TurnView) string {
	if len(view.History) == 0 {
		return "The thread is empty. Begin working on your ready tasks."
	}

	var b strings.Builder
	b.WriteString("This is the thread so far:\n\n")
	for _, entry := range view.History {
		switch entry.Kind {
		case models.HistoryMessage:
			fmt.Fprintf(&b, "[%s] %s\n", entry.Agent, entry.Content)
		case models.HistoryToolCall:
			fmt.Fprintf(&b, "[%s] called tool %s with %v\n", entry.Agent, entry.Content, entry.Value)
		case models.HistoryToolResult:
			if entry.IsError {
				fmt.Fprintf(&b, "[tool error] %s\n", entry.Content)
			} else {
				fmt.Fprintf(&b, "[tool %s] %v\n", entry.Content, entry.Value)
			}
		case models.HistoryUserInput:
			fmt.Fprintf(&b, "[human] %s\n", entry.Content)
		case models.HistoryFeedback:
			fmt.Fprintf(&b, "[orchestrator] %s\n", entry.Content)
		case models.HistoryTaskResult:
			fmt.Fprintf(&b, "[orchestrator] %s\n", entry.Content)
		}
	}
	b.WriteString("\nIt is now your turn to act.")
	return b.String()
}
