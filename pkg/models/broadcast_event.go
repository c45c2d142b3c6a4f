package models

// BroadcastEvent is a small JSON-valued record published on the fan-out
// event bus. Event is a dotted name (e.g. "tool.result"); Data must include
// "channel_id" whenever the event is scoped to one channel.
type BroadcastEvent struct {
	Event string
	Data  map[string]any
}

// Standardized event names, per the broadcaster's event table.
const (
	EventAgentToolCall        = "agent.tool_call"
	EventToolResult           = "tool.result"
	EventAgentModeChange      = "agent.mode_change"
	EventExecutionTaskStarted = "execution.task_started"
	EventTaskCompleted        = "execution.task_completed"
	EventChannelStarted       = "channel.started"
	EventChannelStopped       = "channel.stopped"
)
