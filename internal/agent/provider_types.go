package agent

import (
	"context"

	"github.com/coredispatch/agentcore/pkg/models"
)

// CompletionRequest is everything a provider needs to produce one
// AgentReply: the running transcript, the tools currently available to the
// session, and a system prompt.
type CompletionRequest struct {
	System   string
	Messages []models.Message
	Tools    []ToolDefinition
	MaxTokens int
}

// Provider is the adapter contract C3 implementations satisfy. Each
// implementation owns the translation between the canonical Message/
// ToolCall/AgentReply shapes and one upstream wire format.
type Provider interface {
	// Name identifies the provider for logging and model routing.
	Name() string

	// Complete sends one request and returns the canonical reply. The
	// returned AgentReply.StopReason is StopToolUse whenever ToolCalls is
	// non-empty; it can also be StopToolUse with no ToolCalls when the
	// upstream finish reason reports tool use.
	Complete(ctx context.Context, req CompletionRequest) (models.AgentReply, error)
}

// ProviderRegistry resolves a model name to the Provider that serves it.
// Generalizes the "exactly two providers" shape of the spec without
// hard-coding provider identity anywhere above this layer.
type ProviderRegistry struct {
	providers map[string]Provider
	modelMap  map[string]string // model name -> provider name
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
		modelMap:  make(map[string]string),
	}
}

// Register adds a provider and the model names it serves.
func (r *ProviderRegistry) Register(p Provider, models ...string) {
	r.providers[p.Name()] = p
	for _, m := range models {
		r.modelMap[m] = p.Name()
	}
}

// Resolve returns the provider that serves a given model name.
func (r *ProviderRegistry) Resolve(model string) (Provider, error) {
	name, ok := r.modelMap[model]
	if !ok {
		return nil, NewToolError(KindValidation, "", "no provider registered for model "+model, nil)
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, NewToolError(KindInternal, "", "provider "+name+" vanished from registry", nil)
	}
	return p, nil
}
