package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/coredispatch/agentcore/internal/agent"
	"github.com/coredispatch/agentcore/pkg/models"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIProvider adapts OpenAI's function-calling wire format (tool_calls/
// tool_call_id, string-JSON function arguments) to the canonical model.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), defaultModel: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends one non-streaming chat completion request and converts
// the response back into a canonical AgentReply. OpenAI transports tool
// call arguments as a raw JSON string rather than a JSON object; a failure
// to parse that string falls back to an empty object rather than erroring
// the whole round, since a malformed-but-present call should still reach
// schema validation (and a clear rejection) downstream.
func (p *OpenAIProvider) Complete(ctx context.Context, req agent.CompletionRequest) (models.AgentReply, error) {
	messages := convertMessagesToOpenAI(req.Messages, req.System)

	chatReq := openai.ChatCompletionRequest{
		Model:     p.defaultModel,
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.AgentReply{}, classifyCompletionError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return models.AgentReply{}, fmt.Errorf("openai completion: no choices returned")
	}
	choice := resp.Choices[0]

	var calls []models.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := parseToolArguments(tc.Function.Arguments)
		calls = append(calls, models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: args})
	}

	stop := models.StopEndTurn
	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		stop = models.StopToolUse
	case openai.FinishReasonLength:
		stop = models.StopLength
	}
	if len(calls) > 0 {
		stop = models.StopToolUse
	}

	return models.AgentReply{Content: choice.Message.Content, ToolCalls: calls, StopReason: stop}, nil
}

// parseToolArguments decodes OpenAI's string-encoded function arguments.
// Falls back to an empty JSON object on parse failure, per the adapter's
// resolved handling of malformed tool-call argument strings.
func parseToolArguments(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

func convertMessagesToOpenAI(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if len(m.ToolCalls) > 0 {
				// Assistant turns that carry tool calls send null content per
				// the function-calling wire format, not an empty string.
				oaiMsg.Content = ""
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return result
}

func convertToolsToOpenAI(tools []agent.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return result
}
