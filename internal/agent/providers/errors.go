package providers

import (
	"strings"

	"github.com/coredispatch/agentcore/internal/agent"
)

// classifyCompletionError turns a provider SDK error into the ToolError
// kind the dispatcher needs, recognizing authentication failures by their
// characteristic wording. Neither the Anthropic nor the OpenAI SDK exports
// a typed sentinel for "unauthorized", so this matches on the message text
// both APIs use for a rejected or missing key.
func classifyCompletionError(providerName string, err error) *agent.ToolError {
	if isAuthFailure(err.Error()) {
		return agent.NewToolError(agent.KindAuth, providerName, "authentication failed: "+err.Error(), err)
	}
	return agent.NewToolError(agent.KindUpstream, providerName, err.Error(), err)
}

func isAuthFailure(msg string) bool {
	lower := strings.ToLower(msg)
	markers := []string{
		"401",
		"unauthorized",
		"invalid api key",
		"invalid x-api-key",
		"incorrect api key",
		"authentication_error",
	}
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
