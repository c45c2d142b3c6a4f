package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coredispatch/agentcore/pkg/models"
)

func schemaTool(name string, required ...string) ToolDefinition {
	return ToolDefinition{
		Name: name,
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]PropertySchema{
				"command": {Type: "string"},
			},
			Required: required,
		},
	}
}

type fnTool struct {
	def ToolDefinition
	run func(args json.RawMessage, tc ToolContext) (ToolResult, error)
}

func (f fnTool) Definition() ToolDefinition { return f.def }

func (f fnTool) Execute(args json.RawMessage, tc ToolContext) (ToolResult, error) {
	return f.run(args, tc)
}

func newTestExecutor(cfg ExecutorConfig, tools ...Tool) (*Executor, *ToolRegistry) {
	reg := NewToolRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return NewExecutor(reg, cfg), reg
}

func TestExecuteRoundPreservesCallOrder(t *testing.T) {
	exec, _ := newTestExecutor(ExecutorConfig{MaxConcurrent: 4, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("slow"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			time.Sleep(20 * time.Millisecond)
			return ToolResult{Success: true, Content: "slow"}, nil
		}},
		fnTool{def: schemaTool("fast"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			return ToolResult{Success: true, Content: "fast"}, nil
		}},
	)

	calls := []models.ToolCall{
		{ID: "1", Name: "slow", Input: json.RawMessage(`{}`)},
		{ID: "2", Name: "fast", Input: json.RawMessage(`{}`)},
	}
	responses := exec.ExecuteRound(context.Background(), calls, ToolContext{})
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].ToolCallID != "1" || responses[0].Content != "slow" {
		t.Fatalf("expected first response to correspond to the slow call, got %+v", responses[0])
	}
	if responses[1].ToolCallID != "2" || responses[1].Content != "fast" {
		t.Fatalf("expected second response to correspond to the fast call, got %+v", responses[1])
	}
}

func TestExecuteUnknownToolReturnsValidationError(t *testing.T) {
	exec, _ := newTestExecutor(ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second})
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "ghost", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected an error response for an unknown tool")
	}
}

func TestExecuteRejectsArgsFailingSchema(t *testing.T) {
	exec, _ := newTestExecutor(ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("needs_command", "command"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			t.Fatalf("tool should not run when schema validation fails")
			return ToolResult{}, nil
		}},
	)
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "needs_command", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected a schema-validation error response")
	}
}

func TestExecuteRetriesUpstreamFailureThenSucceeds(t *testing.T) {
	var attempts int32
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 3, CallTimeout: time.Second},
		fnTool{def: schemaTool("flaky"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return ToolResult{}, fmt.Errorf("transient failure")
			}
			return ToolResult{Success: true, Content: "recovered"}, nil
		}},
	)
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "flaky", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if responses[0].IsError {
		t.Fatalf("expected the call to eventually succeed, got error: %s", responses[0].Content)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPolicyRejection(t *testing.T) {
	var attempts int32
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 5, CallTimeout: time.Second},
		fnTool{def: schemaTool("danger"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			atomic.AddInt32(&attempts, 1)
			return ToolResult{}, NewToolError(KindPolicy, "danger", "command rejected", nil)
		}},
	)
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "danger", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected a policy rejection error response")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable policy error, got %d", got)
	}
}

func TestExecuteTimesOutSlowTool(t *testing.T) {
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: 10 * time.Millisecond},
		fnTool{def: schemaTool("hangs"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			time.Sleep(100 * time.Millisecond)
			return ToolResult{Success: true}, nil
		}},
	)
	start := time.Now()
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "hangs", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected a timeout error response")
	}
	if elapsed := time.Since(start); elapsed > 80*time.Millisecond {
		t.Fatalf("expected the call to be cut off near the timeout, took %s", elapsed)
	}
}

func TestExecuteRecoversToolPanic(t *testing.T) {
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("boom"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			panic("tool exploded")
		}},
	)
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "boom", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected a panic to surface as an error response, not crash the test")
	}
}

func TestExecuteTruncatesOversizedOutput(t *testing.T) {
	huge := make([]byte, MaxResultBytes+100)
	for i := range huge {
		huge[i] = 'x'
	}
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("verbose"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			return ToolResult{Success: true, Content: string(huge)}, nil
		}},
	)
	responses := exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "verbose", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if len(responses[0].Content) > MaxResultBytes+len(truncationMarker) {
		t.Fatalf("expected truncated content, got %d bytes", len(responses[0].Content))
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []struct {
		name string
		data map[string]any
	}
}

func (s *recordingSink) Publish(event string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, struct {
		name string
		data map[string]any
	}{event, data})
}

func TestExecutePublishesToolResultWithDocumentedKeys(t *testing.T) {
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("echo"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			return ToolResult{Success: true, Content: "ok"}, nil
		}},
	)
	sink := &recordingSink{}
	exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "echo", Input: json.RawMessage(`{}`)},
	}, ToolContext{ChannelID: 42, Broadcaster: sink})

	if len(sink.events) != 1 || sink.events[0].name != models.EventToolResult {
		t.Fatalf("expected exactly one tool.result event, got %+v", sink.events)
	}
	data := sink.events[0].data
	for _, key := range []string{"channel_id", "tool_name", "success", "duration_ms", "content"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("expected tool.result payload to include %q, got %+v", key, data)
		}
	}
	if data["tool_name"] != "echo" || data["success"] != true || data["content"] != "ok" {
		t.Fatalf("unexpected tool.result payload: %+v", data)
	}
}

func TestExecuteDoesNotPublishAgentToolCall(t *testing.T) {
	// agent.tool_call is emitted once per call by the Loop, not by the
	// executor's retry loop (which would otherwise fire once per attempt).
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 3, CallTimeout: time.Second},
		fnTool{def: schemaTool("flaky"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			return ToolResult{}, NewToolError(KindUpstream, "flaky", "transient", nil)
		}},
	)
	sink := &recordingSink{}
	exec.ExecuteRound(context.Background(), []models.ToolCall{
		{ID: "1", Name: "flaky", Input: json.RawMessage(`{}`)},
	}, ToolContext{ChannelID: 1, Broadcaster: sink})

	for _, evt := range sink.events {
		if evt.name == models.EventAgentToolCall {
			t.Fatalf("expected the executor to never publish agent.tool_call, got %+v", evt)
		}
	}
}

func TestExecuteRejectsCancelledContextBeforeStart(t *testing.T) {
	exec, _ := newTestExecutor(
		ExecutorConfig{MaxConcurrent: 1, MaxAttempts: 1, CallTimeout: time.Second},
		fnTool{def: schemaTool("noop"), run: func(json.RawMessage, ToolContext) (ToolResult, error) {
			return ToolResult{Success: true}, nil
		}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	responses := exec.ExecuteRound(ctx, []models.ToolCall{
		{ID: "1", Name: "noop", Input: json.RawMessage(`{}`)},
	}, ToolContext{})
	if !responses[0].IsError {
		t.Fatalf("expected a cancellation error response")
	}
}
