package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/thomascherickal/agentflow/internal/executor"
	"github.com/thomascherickal/agentflow/pkg/models"
)

const (
	taskToolPrefix       = "mark_task_"
	taskToolSuccessSuffix = "_successful"
	taskToolFailedSuffix = "_failed"
	talkToHumanTool      = "talk_to_human"
)

// successToolName returns the completion tool name for a task.
func successToolName(taskID string) string {
	return taskToolPrefix + taskID + taskToolSuccessSuffix
}

// failedToolName returns the failure tool name for a task.
func failedToolName(taskID string) string {
	return taskToolPrefix + taskID + taskToolFailedSuffix
}

// TurnTools builds the Anthropic tool set for a turn: completion and
// failure tools per ready task, talk_to_human when any ready task allows
// it, and the registered tool schemas.
func TurnTools(view executor.TurnView) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam

	var humanTaskIDs []string
	for _, t := range view.ReadyTasks {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        successToolName(t.ID),
				Description: anthropic.String(fmt.Sprintf("Mark task %s (%s) successful by providing its result.", t.ID, t.Objective)),
				InputSchema: resultInputSchema(t.ResultType),
			},
		})
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        failedToolName(t.ID),
				Description: anthropic.String(fmt.Sprintf("Mark task %s (%s) failed. Only use this for technical errors, not difficulty.", t.ID, t.Objective)),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"reason": map[string]interface{}{
							"type":        "string",
							"description": "Why the task cannot be completed",
						},
					},
					Required: []string{"reason"},
				},
			},
		})
		if t.UserAccess {
			humanTaskIDs = append(humanTaskIDs, t.ID)
		}
	}

	if len(humanTaskIDs) > 0 {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        talkToHumanTool,
				Description: anthropic.String("Send a message to the human user and wait for their response."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"task_id": map[string]interface{}{
							"type":        "string",
							"enum":        humanTaskIDs,
							"description": "The task this conversation is for",
						},
						"message": map[string]interface{}{
							"type":        "string",
							"description": "The message to send to the human",
						},
					},
					Required: []string{"task_id", "message"},
				},
			},
		})
	}

	for _, tool := range view.Tools {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: resultInputSchema(tool.Input),
			},
		})
	}

	return tools
}

// resultInputSchema converts a result type declaration into an Anthropic
// tool input schema. Records map field-for-field; scalars are wrapped in
// a single required "result" property; none takes no input.
func resultInputSchema(rt models.ResultType) anthropic.ToolInputSchemaParam {
	switch rt.Kind {
	case models.KindNone:
		return anthropic.ToolInputSchemaParam{
			Properties: map[string]interface{}{},
		}
	case models.KindRecord:
		properties := make(map[string]interface{}, len(rt.Fields))
		required := make([]string, 0, len(rt.Fields))
		for _, field := range rt.Fields {
			properties[field.Name] = schemaNode(field.Type)
			required = append(required, field.Name)
		}
		return anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
		}
	default:
		return anthropic.ToolInputSchemaParam{
			Properties: map[string]interface{}{
				"result": schemaNode(rt),
			},
			Required: []string{"result"},
		}
	}
}

// schemaNode maps a result type to a JSON schema node.
func schemaNode(rt models.ResultType) map[string]interface{} {
	switch rt.Kind {
	case models.KindString:
		return map[string]interface{}{"type": "string"}
	case models.KindInt:
		return map[string]interface{}{"type": "integer"}
	case models.KindFloat:
		return map[string]interface{}{"type": "number"}
	case models.KindBool:
		return map[string]interface{}{"type": "boolean"}
	case models.KindEnum:
		return map[string]interface{}{"type": "string", "enum": rt.Members}
	case models.KindRecord:
		properties := make(map[string]interface{}, len(rt.Fields))
		required := make([]string, 0, len(rt.Fields))
		for _, field := range rt.Fields {
			properties[field.Name] = schemaNode(field.Type)
			required = append(required, field.Name)
		}
		return map[string]interface{}{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		}
	default:
		return map[string]interface{}{"type": "null"}
	}
}

// DecodeAction maps a tool use from the model's response to an action.
// resultTypes carries the ready tasks' declared result types, used to
// unwrap scalar payloads.
func DecodeAction(name string, input json.RawMessage, resultTypes map[string]models.ResultType) (models.Action, error) {
	args := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return models.Action{}, fmt.Errorf("decode tool input for %s: %w", name, err)
		}
	}

	if strings.HasPrefix(name, taskToolPrefix) {
		if taskID, ok := strings.CutSuffix(strings.TrimPrefix(name, taskToolPrefix), taskToolSuccessSuffix); ok {
			return models.MarkSuccessful(taskID, successPayload(args, resultTypes[taskID])), nil
		}
		if taskID, ok := strings.CutSuffix(strings.TrimPrefix(name, taskToolPrefix), taskToolFailedSuffix); ok {
			reason, _ := args["reason"].(string)
			return models.MarkFailed(taskID, reason), nil
		}
	}

	if name == talkToHumanTool {
		taskID, _ := args["task_id"].(string)
		message, _ := args["message"].(string)
		return models.RequestUserInput(taskID, message), nil
	}

	return models.CallTool(name, args), nil
}

// successPayload unwraps a completion tool's arguments into the task's
// result payload shape.
func successPayload(args map[string]any, rt models.ResultType) any {
	switch rt.Kind {
	case models.KindNone:
		return nil
	case models.KindRecord:
		return args
	default:
		return args["result"]
	}
}
