// Package agent implements the dispatch-and-execution core: the tool
// registry and executor (C1/C2), the provider adapter contract (C3), and
// the agent loop that drives multi-round tool-calling dialogues (C4).
package agent

import (
	"context"
	"encoding/json"
)

// ToolGroup is a coarse permission tag used to filter the executable tool
// set per channel.
type ToolGroup string

const (
	GroupExec     ToolGroup = "exec"
	GroupMessage  ToolGroup = "messaging"
	GroupFiles    ToolGroup = "files"
	GroupNet      ToolGroup = "net"
	GroupIdentity ToolGroup = "identity"
)

// PropertySchema describes one property of a tool's input schema.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is the JSON-Schema subset tool definitions use to describe
// their arguments: an object with named, typed properties and a required
// list.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// MarshalJSON renders an InputSchema as the raw JSON Schema object a
// provider adapter (or the jsonschema validator) expects.
func (s InputSchema) MarshalJSON() ([]byte, error) {
	type alias InputSchema
	if s.Type == "" {
		s.Type = "object"
	}
	return json.Marshal(alias(s))
}

// ToolDefinition describes a tool's identity and input contract.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
	Group       ToolGroup   `json:"group"`
}

// ToolResult is the outcome of one tool execution. Content is truncated to
// 50,000 bytes by the executor before it reaches the conversation.
type ToolResult struct {
	Success  bool
	Content  string
	Metadata map[string]any
}

// ToolContext is the per-execution capability bag passed to a tool. Its
// lifetime is exactly one tool call.
type ToolContext struct {
	Ctx             context.Context
	WorkspaceDir    string
	APIKeys         map[string]string
	ChannelID       int64
	Broadcaster     EventSink
	SubagentManager SubagentSpawner
	Spawner         SpawnRunner
	SecurityMode    SecurityMode
}

// SecurityMode gates how aggressively the exec tool rejects shell input.
type SecurityMode string

const (
	SecurityFull       SecurityMode = "full"
	SecurityRestricted SecurityMode = "restricted"
)

// Tool is the capability every registry entry implements.
type Tool interface {
	Definition() ToolDefinition
	Execute(args json.RawMessage, tc ToolContext) (ToolResult, error)
}

// EventSink is the narrow interface the agent core needs from the event
// broadcaster: publish, without caring who (if anyone) is subscribed.
type EventSink interface {
	Publish(event string, data map[string]any)
}

// SubagentSpawner is the narrow interface the agent core needs from the
// sub-agent manager, so C4/tools can spawn children without importing the
// manager package directly. The returned context is scoped to the child
// run's timeout/cancellation and must be used to drive its agent loop.
type SubagentSpawner interface {
	Spawn(ctx context.Context, channelID int64, label, task string, timeoutMs int64) (id string, childCtx context.Context)
	Start(id string) error
	Finish(id string, success bool, result, errMsg string) error
	Cancel(id string) error
}

// SpawnRunner actually drives a spawned sub-agent's child agent loop to
// completion, in the background, calling Start/Finish on the sub-agent
// manager as it transitions. The spawn_subagent tool hands the freshly
// registered run off to this instead of running the loop itself, since a
// tool call must return promptly; the Dispatcher is the concrete
// implementation, since it alone holds the provider/executor/tool-registry
// wiring a child loop needs.
type SpawnRunner interface {
	RunChild(ctx context.Context, id string, channelID int64, task string)
}
