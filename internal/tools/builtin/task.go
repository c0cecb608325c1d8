package builtin

import (
	"context"
	"fmt"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

// Task implements the `task` tool of spec.md §4.4: recursive sub-task
// delegation, synchronous or backgrounded, dispatched through the borrowed
// ports.SubagentHandle on the ToolContext so this package never imports the
// agent/subagent package directly.
type Task struct{}

func NewTask() *Task { return &Task{} }

func (t *Task) Name() string        { return "task" }
func (t *Task) Description() string { return "Delegate a sub-task to a nested agent with a restricted tool set." }

func (t *Task) ParametersSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"subagent_type":     {Type: "string", Description: "explore | plan | general | bash"},
			"prompt":            {Type: "string", Description: "Task prompt for the sub-agent"},
			"run_in_background": {Type: "boolean", Description: "Run asynchronously and return a task id"},
			"resume":            {Type: "string", Description: "A previously returned task id to poll"},
		},
	}
}

func (t *Task) Execute(ctx context.Context, args map[string]any, tctx *ports.ToolContext) (*ports.ToolResult, error) {
	if tctx == nil || tctx.Subagent == nil {
		return &ports.ToolResult{Success: false, Error: "subagents are not available in this context"}, nil
	}
	if tctx.Depth >= tctx.MaxDepth {
		return &ports.ToolResult{Success: false, Error: fmt.Sprintf("maximum subagent depth (%d) reached", tctx.MaxDepth)}, nil
	}

	if resume, ok := args["resume"].(string); ok && resume != "" {
		return t.pollResume(tctx, resume)
	}

	subagentType, _ := args["subagent_type"].(string)
	prompt, _ := args["prompt"].(string)
	if subagentType == "" || prompt == "" {
		return &ports.ToolResult{Success: false, Error: "missing 'subagent_type' or 'prompt'"}, nil
	}
	background, _ := args["run_in_background"].(bool)

	params := ports.SubagentTaskParams{SubagentType: subagentType, Prompt: prompt, RunInBackground: background}

	if background {
		id, err := tctx.Subagent.StartBackground(ctx, params)
		if err != nil {
			return &ports.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return &ports.ToolResult{Success: true, Output: fmt.Sprintf("Started background task %s", id)}, nil
	}

	res, err := tctx.Subagent.Run(ctx, params)
	if err != nil {
		return &ports.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if !res.Success {
		return &ports.ToolResult{Success: false, Error: res.Error}, nil
	}
	return &ports.ToolResult{Success: true, Output: res.Output}, nil
}

func (t *Task) pollResume(tctx *ports.ToolContext, id string) (*ports.ToolResult, error) {
	if !tctx.Subagent.Exists(id) {
		return &ports.ToolResult{Success: false, Error: "Task not found"}, nil
	}
	if !tctx.Subagent.IsComplete(id) {
		return &ports.ToolResult{Success: true, Output: fmt.Sprintf("Task %s is still running; check back later.", id)}, nil
	}
	res, found := tctx.Subagent.GetResult(id)
	if !found {
		return &ports.ToolResult{Success: false, Error: "Task not found"}, nil
	}
	if !res.Success {
		return &ports.ToolResult{Success: false, Error: res.Error}, nil
	}
	return &ports.ToolResult{Success: true, Output: res.Output}, nil
}
