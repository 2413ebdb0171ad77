package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thomascherickal/agentflow/internal/executor"
)

// RenderSystemPrompt builds the system prompt for a turn: agent
// identity, the workflow's task state, and the communication rules.
func RenderSystemPrompt(view executor.TurnView) string {
	sections := []string{
		renderAgent(view),
		renderWorkflow(view),
		renderCommunication(view),
	}
	return strings.Join(sections, "\n\n")
}

func renderAgent(view executor.TurnView) string {
	var b strings.Builder
	b.WriteString("# Agent\n\n")
	b.WriteString("You are an AI agent.\n\n")
	fmt.Fprintf(&b, "- Your name: %q\n", view.Agent.Name)
	if view.Agent.Description != "" {
		fmt.Fprintf(&b, "- Your description: %q\n", view.Agent.Description)
	}

	b.WriteString("\n## Instructions\n\n")
	b.WriteString("You are part of an AI workflow and your job is to complete tasks assigned to you. ")
	b.WriteString("You complete a task by using the appropriate tool to supply a result that satisfies all of the task's requirements.\n\n")
	b.WriteString("You must follow your instructions at all times.\n")

	if view.Agent.Instructions != "" {
		b.WriteString("\nThese are your private instructions:\n")
		fmt.Fprintf(&b, "- %s\n", view.Agent.Instructions)
	}
	if len(view.Instructions) > 0 {
		b.WriteString("\nThese instructions apply to all agents at this part of the workflow:\n")
		for _, instr := range view.Instructions {
			fmt.Fprintf(&b, "- %s\n", instr)
		}
	}

	b.WriteString("\n## Other Agents\n\n")
	b.WriteString("You may be working with other agents. They may have different instructions and tools than you. ")
	b.WriteString("To communicate with other agents, post messages to the thread.")
	return b.String()
}

func renderWorkflow(view executor.TurnView) string {
	var b strings.Builder
	b.WriteString("# Workflow\n\n")
	fmt.Fprintf(&b, "## Flow\n\nName: %s\n", view.FlowName)
	b.WriteString("Context:\n")
	if len(view.FlowContext) == 0 {
		b.WriteString("(No specific context provided.)\n")
	} else {
		for _, key := range sortedKeys(view.FlowContext) {
			fmt.Fprintf(&b, "- %s: %v\n", key, view.FlowContext[key])
		}
	}

	b.WriteString("\n## Ready tasks\n\n")
	b.WriteString("These tasks are ready to be worked on. All of their dependencies have been completed. ")
	b.WriteString("You have been given additional tools for any of these tasks that are assigned to you. ")
	b.WriteString("Use all available information to complete them.\n")
	for _, t := range view.ReadyTasks {
		renderReadyTask(&b, t)
	}

	if len(view.OtherTasks) > 0 {
		b.WriteString("\n## Other tasks\n\n")
		b.WriteString("These tasks are also part of the workflow and are provided for context. ")
		b.WriteString("They may be upstream or downstream of the active tasks.\n")
		for _, t := range view.OtherTasks {
			renderOtherTask(&b, t)
		}
	}

	b.WriteString("\n## Completing a task\n\n")
	b.WriteString("Use the appropriate tool to complete a task and provide a result. ")
	b.WriteString("It may take multiple turns or collaboration with other agents to complete a task. ")
	b.WriteString("Once you mark a task as complete, no other agent can interact with it.\n\n")
	b.WriteString("A task's result is an artifact that represents its objective. ")
	b.WriteString("Tasks should only be marked failed due to technical errors like a broken or erroring tool or unresponsive human.\n\n")
	b.WriteString("Tasks may depend on other tasks and can not be completed until their dependencies are met.")
	return b.String()
}

func renderReadyTask(b *strings.Builder, t executor.TaskView) {
	fmt.Fprintf(b, "\n### Task %s\n\n", t.ID)
	fmt.Fprintf(b, "- objective: %s\n", t.Objective)
	fmt.Fprintf(b, "- result_type: %s\n", t.ResultType)
	if t.Instructions != "" {
		fmt.Fprintf(b, "- instructions: %s\n", t.Instructions)
	}
	if len(t.Context) > 0 {
		b.WriteString("- context:\n")
		for _, key := range sortedKeys(t.Context) {
			fmt.Fprintf(b, "    - %s: %v\n", key, t.Context[key])
		}
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(b, "- depends_on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Agents) > 0 {
		fmt.Fprintf(b, "- assigned agents: %s\n", strings.Join(t.Agents, ", "))
	}
	if t.UserAccess {
		b.WriteString("- user_access: this task may talk to a human\n")
	}
}

func renderOtherTask(b *strings.Builder, t executor.TaskView) {
	fmt.Fprintf(b, "\n### Task %s\n\n", t.ID)
	fmt.Fprintf(b, "- objective: %s\n", t.Objective)
	fmt.Fprintf(b, "- status: %s\n", t.Status)
	if t.Result != nil {
		fmt.Fprintf(b, "- result: %v\n", t.Result)
	}
	if t.Error != "" {
		fmt.Fprintf(b, "- error: %s\n", t.Error)
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(b, "- depends_on: %s\n", strings.Join(t.DependsOn, ", "))
	}
}

func renderCommunication(view executor.TurnView) string {
	var b strings.Builder
	b.WriteString("# Communication\n\n")
	b.WriteString("## The thread\n\n")
	b.WriteString("You and other agents are all communicating on a thread to complete tasks. ")
	b.WriteString("This thread represents the internal state of the system you are working in. ")
	b.WriteString("Human users do not have access to it, nor can they participate directly in it.\n\n")
	b.WriteString("When it is your turn to act, you may only post messages from yourself. ")
	b.WriteString("Do not impersonate another agent or post messages on their behalf. ")
	b.WriteString("The workflow orchestrator will make sure that all agents have a fair chance to act. ")
	b.WriteString("You do not need to identify yourself in your messages.\n\n")
	b.WriteString("## Talking to human users\n\n")
	b.WriteString("If your task requires communicating with a human, you will be given a `talk_to_human` tool. ")
	b.WriteString("Do not mention your tasks or the workflow; the human can only see messages you send them via the tool. ")
	b.WriteString("Humans may give poor, incorrect, or partial responses and you may need to ask questions multiple times. ")
	b.WriteString("If your task requires human interaction and it does not allow user access, you can fail the task.")
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
