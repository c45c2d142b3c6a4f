// Package models holds the canonical data types shared by the agent core:
// the conversation turn shape, tool call/result correlation, and the
// channel-agnostic inbound message envelope.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a canonical conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// StopReason is why a provider completion ended.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
	StopLength  StopReason = "length"
	StopError   StopReason = "error"
)

// ToolCall is one provider-issued request to invoke a tool. ID is opaque
// and unique within a single round; it correlates the call with its
// ToolResponse in the next round.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"arguments"`
}

// ToolResponse is the result of one ToolCall, ready to be appended as the
// content of a tool-role Message.
type ToolResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Message is a single canonical conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// IsError marks a tool-role turn whose ToolResponse.IsError was set,
	// so provider adapters that support it (Anthropic's tool_result block)
	// can flag the failure to the model instead of silently losing it.
	IsError   bool      `json:"is_error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AgentReply is the canonical result of one provider completion request.
// Invariant: len(ToolCalls) > 0 implies StopReason == StopToolUse.
type AgentReply struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason StopReason `json:"stop_reason"`
}

// NormalizedMessage is the channel-agnostic input unit the Dispatcher
// consumes. Immutable after creation.
type NormalizedMessage struct {
	ChannelID   int64
	ChannelType string
	ChatID      string
	UserID      string
	UserName    string
	Text        string
	MessageID   string
	SessionMode string
}

// Session is the persisted conversation identity for one (channel_id,
// chat_id) pair.
type Session struct {
	ID          string
	ChannelID   int64
	ChannelType string
	ChatID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
