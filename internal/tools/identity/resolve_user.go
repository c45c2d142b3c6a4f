// Package identity implements the builtin "resolve_user" tool: resolving a
// channel-native user mention to a registered identity record.
package identity

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/coredispatch/agentcore/internal/agent"
)

// Profile is what a Resolver returns for a known user.
type Profile struct {
	UserID        string
	DisplayName   string
	PublicAddress string
	Registered    bool
}

// Resolver is the narrow directory-lookup capability this tool needs. The
// actual identity store (on-chain registry, database-backed profile table,
// whatever the deployment wires up) is an external collaborator kept out
// of the agent core.
type Resolver interface {
	Lookup(userID string) (Profile, bool, error)
}

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

type Tool struct {
	resolver Resolver
}

func New(resolver Resolver) *Tool {
	return &Tool{resolver: resolver}
}

func (t *Tool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name: "resolve_user",
		Description: "Resolve a user mention (in the form '<@USER_ID>', '<@!USER_ID>', or a bare " +
			"numeric id) to their registered identity, if any.",
		Group: agent.GroupIdentity,
		InputSchema: agent.InputSchema{
			Type: "object",
			Properties: map[string]agent.PropertySchema{
				"user_mention": {Type: "string", Description: "User mention or bare numeric user id."},
			},
			Required: []string{"user_mention"},
		},
	}
}

type resolveArgs struct {
	UserMention string `json:"user_mention"`
}

type resolveResult struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name,omitempty"`
	PublicAddress string `json:"public_address,omitempty"`
	Registered    bool   `json:"registered"`
	Error         string `json:"error,omitempty"`
}

func (t *Tool) Execute(raw json.RawMessage, tc agent.ToolContext) (agent.ToolResult, error) {
	var args resolveArgs
	if err := agent.DecodeArgs("resolve_user", raw, &args); err != nil {
		return agent.ToolResult{}, err
	}

	userID, ok := extractUserID(strings.TrimSpace(args.UserMention))
	if !ok {
		return agent.ToolResult{}, agent.NewToolError(agent.KindValidation, "resolve_user",
			"invalid user mention: expected '<@USER_ID>', '<@!USER_ID>', or a numeric id", nil)
	}
	if t.resolver == nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "resolve_user", "no identity resolver configured", nil)
	}

	profile, found, err := t.resolver.Lookup(userID)
	if err != nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindUpstream, "resolve_user", err.Error(), err)
	}

	result := resolveResult{UserID: userID}
	if !found {
		result.Error = "user has never registered an identity"
	} else {
		result.DisplayName = profile.DisplayName
		result.Registered = profile.Registered
		if profile.Registered {
			result.PublicAddress = profile.PublicAddress
		} else {
			result.Error = "user has not completed identity registration"
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "resolve_user", "failed to encode result", err)
	}
	return agent.ToolResult{Success: true, Content: string(payload)}, nil
}

func extractUserID(mention string) (string, bool) {
	if m := mentionPattern.FindStringSubmatch(mention); m != nil {
		return m[1], true
	}
	if mention != "" && isAllDigits(mention) {
		return mention, true
	}
	return "", false
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
