package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/coredispatch/agentcore/pkg/models"
)

// Budget bounds one Run call: at most MaxRounds provider-completion/tool-
// execution rounds, and at most MaxWallTime of wall-clock time, whichever
// is hit first. Prevents a misbehaving tool or provider from looping a
// session forever.
type Budget struct {
	MaxRounds   int
	MaxWallTime time.Duration
}

// DefaultBudget is the budget applied when a caller passes a zero-value
// Budget.
func DefaultBudget() Budget {
	return Budget{MaxRounds: 10, MaxWallTime: 5 * time.Minute}
}

const maxRoundsNotice = "max tool rounds reached"
const maxWallTimeNotice = "max wall time reached"

// Loop drives one multi-round tool-calling dialogue: it asks a Provider for
// a completion, and if the reply requests tool use, executes those calls
// and feeds the results back for another round, until the provider replies
// with end_turn, the round/wall-time budget is exhausted, or the context is
// cancelled (C4).
type Loop struct {
	provider Provider
	executor *Executor
	system   string
	tools    []ToolDefinition
}

func NewLoop(provider Provider, executor *Executor, system string, tools []ToolDefinition) *Loop {
	return &Loop{provider: provider, executor: executor, system: system, tools: tools}
}

// Run executes the loop against a starting transcript and returns the
// appended messages produced this turn (assistant replies and tool
// responses), in chronological order. The caller is responsible for
// persisting the combined transcript. A zero-value budget falls back to
// DefaultBudget.
func (l *Loop) Run(ctx context.Context, transcript []models.Message, tc ToolContext, budget Budget) ([]models.Message, error) {
	if budget.MaxRounds <= 0 {
		budget.MaxRounds = DefaultBudget().MaxRounds
	}
	if budget.MaxWallTime <= 0 {
		budget.MaxWallTime = DefaultBudget().MaxWallTime
	}
	deadline := time.Now().Add(budget.MaxWallTime)

	working := append([]models.Message(nil), transcript...)
	var produced []models.Message

	for round := 0; round < budget.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return produced, NewToolError(KindCancelled, "", "agent loop cancelled", err)
		}
		if time.Now().After(deadline) {
			notice := models.Message{Role: models.RoleAssistant, Content: maxWallTimeNotice}
			produced = append(produced, notice)
			return produced, nil
		}

		reply, err := l.provider.Complete(ctx, CompletionRequest{
			System:   l.system,
			Messages: working,
			Tools:    l.tools,
		})
		if err != nil {
			if toolErr, ok := err.(*ToolError); ok {
				return produced, toolErr
			}
			return produced, NewToolError(KindUpstream, l.provider.Name(), fmt.Sprintf("completion failed: %v", err), err)
		}

		assistantMsg := models.Message{
			Role:      models.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		}
		working = append(working, assistantMsg)
		produced = append(produced, assistantMsg)

		if reply.StopReason != models.StopToolUse || len(reply.ToolCalls) == 0 {
			return produced, nil
		}

		// One agent.tool_call event per call, emitted by the loop before the
		// round is submitted to the executor (not by the executor's retry
		// loop, which would fire once per attempt instead of once per call).
		for _, call := range reply.ToolCalls {
			if tc.Broadcaster != nil {
				tc.Broadcaster.Publish(models.EventAgentToolCall, models.ToolEvent{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Stage:      models.ToolEventRequested,
					Input:      call.Input,
				}.ToolCallPayload(tc.ChannelID))
			}
		}

		responses := l.executor.ExecuteRound(ctx, reply.ToolCalls, tc)
		for _, resp := range responses {
			toolMsg := models.Message{
				Role:       models.RoleTool,
				Content:    resp.Content,
				ToolCallID: resp.ToolCallID,
				IsError:    resp.IsError,
			}
			working = append(working, toolMsg)
			produced = append(produced, toolMsg)
		}

		if ctx.Err() != nil {
			return produced, NewToolError(KindCancelled, "", "agent loop cancelled mid-round", ctx.Err())
		}
	}

	notice := models.Message{Role: models.RoleAssistant, Content: maxRoundsNotice}
	produced = append(produced, notice)
	return produced, nil
}
