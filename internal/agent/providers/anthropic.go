// Package providers implements the two LLM provider adapters the agent
// loop drives: Anthropic's content-block wire format and OpenAI's
// function-calling wire format, both translated to and from the canonical
// Message/ToolCall/AgentReply shapes in pkg/models.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coredispatch/agentcore/internal/agent"
	"github.com/coredispatch/agentcore/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider adapts the Anthropic Messages API's content-block wire
// format (content arrays of text/tool_use/tool_result blocks) to the
// canonical model.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), defaultModel: model}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends one non-streaming completion request and converts the
// response's content blocks back into a canonical AgentReply. Tool-call
// arguments are transported as native JSON objects by the SDK, so no
// string-argument parsing is needed on this side; the adapter still emits
// a ToolCall.Input of `{}` if Anthropic ever returns an empty/null input.
func (p *AnthropicProvider) Complete(ctx context.Context, req agent.CompletionRequest) (models.AgentReply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		Messages:  convertMessagesToAnthropic(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToolsToAnthropic(req.Tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.AgentReply{}, classifyCompletionError(p.Name(), err)
	}

	var text string
	var calls []models.ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			input := variant.Input
			if len(input) == 0 || string(input) == "null" {
				input = json.RawMessage("{}")
			}
			calls = append(calls, models.ToolCall{ID: variant.ID, Name: variant.Name, Input: input})
		}
	}

	stop := models.StopEndTurn
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		stop = models.StopToolUse
	case anthropic.StopReasonMaxTokens:
		stop = models.StopLength
	}
	if len(calls) > 0 {
		stop = models.StopToolUse
	}

	return models.AgentReply{Content: text, ToolCalls: calls, StopReason: stop}, nil
}

func convertMessagesToAnthropic(messages []models.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		switch m.Role {
		case models.RoleTool:
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
			result = append(result, anthropic.NewUserMessage(blocks...))
			continue
		case models.RoleAssistant:
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

func convertToolsToAnthropic(tools []agent.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, _ := json.Marshal(t.InputSchema)
		var props any
		_ = json.Unmarshal(raw, &props)
		schema := anthropic.ToolInputSchemaParam{}
		if m, ok := props.(map[string]any); ok {
			if p, ok := m["properties"]; ok {
				schema.Properties = p
			}
			if r, ok := m["required"]; ok {
				if reqs, ok := r.([]any); ok {
					for _, v := range reqs {
						if s, ok := v.(string); ok {
							schema.Required = append(schema.Required, s)
						}
					}
				}
			}
		}
		result = append(result, anthropic.ToolUnionParamOfTool(schema, t.Name, anthropic.String(t.Description)))
	}
	return result
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}
