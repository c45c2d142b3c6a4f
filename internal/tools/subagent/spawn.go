// Package subagent implements the builtin "spawn_subagent" tool, a thin
// wrapper around the sub-agent manager's Spawn operation (C5). The tool
// registers the child run and hands the returned id and child context off
// to the ToolContext's SpawnRunner, which actually drives the child's
// agent loop in the background; the tool call itself returns promptly.
package subagent

import (
	"encoding/json"

	"github.com/coredispatch/agentcore/internal/agent"
)

type Tool struct{}

func New() *Tool { return &Tool{} }

func (t *Tool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "spawn_subagent",
		Description: "Spawn a child agent to work on a sub-task in the background. Returns a run id to check on later.",
		Group:       agent.GroupExec,
		InputSchema: agent.InputSchema{
			Type: "object",
			Properties: map[string]agent.PropertySchema{
				"task":             {Type: "string", Description: "Description of the sub-task for the child agent."},
				"label":            {Type: "string", Description: "Optional short label for the run."},
				"timeout_seconds":  {Type: "integer", Description: "Maximum runtime before the child is cancelled; 0 uses the manager default."},
			},
			Required: []string{"task"},
		},
	}
}

type spawnArgs struct {
	Task           string `json:"task"`
	Label          string `json:"label"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type spawnResult struct {
	RunID string `json:"run_id"`
}

func (t *Tool) Execute(raw json.RawMessage, tc agent.ToolContext) (agent.ToolResult, error) {
	var args spawnArgs
	if err := agent.DecodeArgs("spawn_subagent", raw, &args); err != nil {
		return agent.ToolResult{}, err
	}
	if args.Task == "" {
		return agent.ToolResult{}, agent.NewToolError(agent.KindValidation, "spawn_subagent", "task is required", nil)
	}
	if tc.SubagentManager == nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "spawn_subagent", "no sub-agent manager configured", nil)
	}

	timeoutMs := int64(args.TimeoutSeconds) * 1000
	runID, childCtx := tc.SubagentManager.Spawn(tc.Ctx, tc.ChannelID, args.Label, args.Task, timeoutMs)
	if tc.Spawner != nil {
		tc.Spawner.RunChild(childCtx, runID, tc.ChannelID, args.Task)
	}

	payload, err := json.Marshal(spawnResult{RunID: runID})
	if err != nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "spawn_subagent", "failed to encode result", err)
	}
	return agent.ToolResult{Success: true, Content: string(payload)}, nil
}
