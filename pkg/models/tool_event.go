package models

import (
	"encoding/json"
	"time"
)

// ToolEventStage describes the lifecycle stage of a tool invocation for observability.
type ToolEventStage string

const (
	ToolEventRequested        ToolEventStage = "requested"
	ToolEventStarted          ToolEventStage = "started"
	ToolEventSucceeded        ToolEventStage = "succeeded"
	ToolEventFailed           ToolEventStage = "failed"
	ToolEventDenied           ToolEventStage = "denied"
	ToolEventRetrying         ToolEventStage = "retrying"
	ToolEventApprovalRequired ToolEventStage = "approval_required"
)

// ToolEvent represents a lifecycle event for a tool call including timing
// and results. The agent loop and executor build one of these around each
// call; ToolCallPayload and ResultPayload render it into the broadcaster's
// standardized agent.tool_call/tool.result event shapes.
type ToolEvent struct {
	ToolCallID   string          `json:"tool_call_id"`
	ToolName     string          `json:"tool_name"`
	Stage        ToolEventStage  `json:"stage"`
	Attempt      int             `json:"attempt,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       string          `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	PolicyReason string          `json:"policy_reason,omitempty"`
	StartedAt    time.Time       `json:"started_at,omitempty"`
	FinishedAt   time.Time       `json:"finished_at,omitempty"`
}

// ToolCallPayload renders the event as the agent.tool_call broadcast
// payload: {channel_id, tool_name, parameters}.
func (e ToolEvent) ToolCallPayload(channelID int64) map[string]any {
	return map[string]any{
		"channel_id": channelID,
		"tool_name":  e.ToolName,
		"parameters": e.Input,
	}
}

// ResultPayload renders the event as the tool.result broadcast payload:
// {channel_id, tool_name, success, duration_ms, content}. Content carries
// the failure reason when the call did not succeed.
func (e ToolEvent) ResultPayload(channelID int64) map[string]any {
	success := e.Stage == ToolEventSucceeded
	content := e.Output
	if !success && e.Error != "" {
		content = e.Error
	}
	return map[string]any{
		"channel_id":  channelID,
		"tool_name":   e.ToolName,
		"success":     success,
		"duration_ms": e.FinishedAt.Sub(e.StartedAt).Milliseconds(),
		"content":     content,
	}
}
