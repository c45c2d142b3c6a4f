package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coredispatch/agentcore/internal/backoff"
	"github.com/coredispatch/agentcore/pkg/models"
)

// MaxResultBytes bounds how much of a tool's output content is fed back
// into the conversation. Longer output is truncated with a trailing marker.
const MaxResultBytes = 50_000

const truncationMarker = "\n... [truncated]"

// ExecutorConfig tunes the executor's concurrency and retry behavior.
type ExecutorConfig struct {
	MaxConcurrent int
	MaxAttempts   int
	CallTimeout   time.Duration
	Policy        backoff.BackoffPolicy
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent: 8,
		MaxAttempts:   3,
		CallTimeout:   30 * time.Second,
		Policy:        backoff.DefaultPolicy(),
	}
}

// Executor runs tool calls against the registry (C2): it validates
// arguments against the tool's compiled input schema, bounds concurrency
// with a semaphore, retries retryable failures with backoff, enforces a
// per-call timeout, recovers panics from third-party tool code, truncates
// oversized output, and preserves the request's call ordering in its
// result slice even though calls within a round run concurrently.
type Executor struct {
	registry *ToolRegistry
	cfg      ExecutorConfig
	sem      chan struct{}

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

func NewExecutor(registry *ToolRegistry, cfg ExecutorConfig) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// compiledSchema lazily compiles and caches a tool's input schema the first
// time it's needed, so malformed schemas fail at first use rather than at
// registration (registration order across packages is not guaranteed).
func (e *Executor) compiledSchema(def ToolDefinition) (*jsonschema.Schema, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if s, ok := e.schemas[def.Name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", def.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := "mem://" + def.Name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", def.Name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", def.Name, err)
	}
	e.schemas[def.Name] = schema
	return schema, nil
}

// ExecuteRound runs every call in a round concurrently (bounded by the
// executor's semaphore) and returns ToolResponses in the same order as the
// input calls, regardless of completion order.
func (e *Executor) ExecuteRound(ctx context.Context, calls []models.ToolCall, tc ToolContext) []models.ToolResponse {
	responses := make([]models.ToolResponse, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))

	for i, call := range calls {
		i, call := i, call
		go func() {
			defer wg.Done()
			responses[i] = e.executeOne(ctx, call, tc)
		}()
	}
	wg.Wait()
	return responses
}

func (e *Executor) executeOne(ctx context.Context, call models.ToolCall, tc ToolContext) models.ToolResponse {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return errResponse(call.ID, NewToolError(KindCancelled, call.Name, "execution cancelled before start", ctx.Err()))
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return errResponse(call.ID, NewToolError(KindValidation, call.Name, "unknown tool", nil))
	}

	def := tool.Definition()
	if schema, err := e.compiledSchema(def); err == nil {
		var v any
		if err := json.Unmarshal(call.Input, &v); err != nil {
			return errResponse(call.ID, NewToolError(KindValidation, call.Name, "arguments are not valid JSON", err))
		}
		if err := schema.Validate(v); err != nil {
			return errResponse(call.ID, NewToolError(KindValidation, call.Name, fmt.Sprintf("arguments failed schema validation: %v", err), err))
		}
	}

	// retryCtx lets a non-retryable failure (a deterministic validation or
	// policy rejection) short-circuit the remaining attempts: callOnce still
	// runs against the caller's ctx, but the retry loop itself stops as soon
	// as it sees an error ToolError.Retryable reports false for.
	retryCtx, cancelRetry := context.WithCancel(ctx)
	defer cancelRetry()

	startedAt := time.Now()
	result, err := backoff.RetryWithBackoff(retryCtx, e.cfg.Policy, e.cfg.MaxAttempts, func(attempt int) (ToolResult, error) {
		res, callErr := e.callOnce(ctx, tool, call, tc)
		if toolErr, ok := callErr.(*ToolError); ok && !toolErr.Retryable() {
			cancelRetry()
		}
		return res, callErr
	})
	finishedAt := time.Now()

	if err != nil {
		var toolErr *ToolError
		if tErr, ok := result.LastError.(*ToolError); ok {
			toolErr = tErr
		} else {
			toolErr = NewToolError(KindInternal, call.Name, err.Error(), err)
		}
		e.publishResult(tc, models.ToolEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Stage:      models.ToolEventFailed,
			Error:      toolErr.Error(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		})
		return errResponse(call.ID, toolErr)
	}

	content := truncate(result.Value.Content)
	response := models.ToolResponse{ToolCallID: call.ID, Content: content, IsError: !result.Value.Success}
	stage := models.ToolEventSucceeded
	if !result.Value.Success {
		stage = models.ToolEventFailed
	}
	e.publishResult(tc, models.ToolEvent{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Stage:      stage,
		Output:     content,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	})
	return response
}

// publishResult emits the tool.result broadcast event for one completed
// call, computed around the callOnce attempts above.
func (e *Executor) publishResult(tc ToolContext, evt models.ToolEvent) {
	if tc.Broadcaster == nil {
		return
	}
	tc.Broadcaster.Publish(models.EventToolResult, evt.ResultPayload(tc.ChannelID))
}

// callOnce invokes a single tool attempt under the configured timeout, and
// converts a panic in tool code into a KindInternal ToolError instead of
// crashing the executor goroutine.
func (e *Executor) callOnce(ctx context.Context, tool Tool, call models.ToolCall, tc ToolContext) (result ToolResult, err error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	tc.Ctx = callCtx

	type outcome struct {
		result ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: NewToolError(KindInternal, call.Name, fmt.Sprintf("tool panicked: %v", r), nil)}
			}
		}()
		res, err := tool.Execute(call.Input, tc)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if _, ok := o.err.(*ToolError); !ok {
				o.err = NewToolError(KindUpstream, call.Name, o.err.Error(), o.err)
			}
			return ToolResult{}, o.err
		}
		return o.result, nil
	case <-callCtx.Done():
		kind := KindTimeout
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		return ToolResult{}, NewToolError(kind, call.Name, "tool execution did not complete in time", callCtx.Err())
	}
}

func truncate(content string) string {
	if len(content) <= MaxResultBytes {
		return content
	}
	return content[:MaxResultBytes] + truncationMarker
}

func errResponse(callID string, err *ToolError) models.ToolResponse {
	return models.ToolResponse{ToolCallID: callID, Content: err.Error(), IsError: true}
}
