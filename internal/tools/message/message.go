// Package message implements the builtin "post_update" tool: posting a
// status update through a channel-appropriate outbound transport.
package message

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/coredispatch/agentcore/internal/agent"
)

const maxUpdateRunes = 25_000

// Poster is the narrow outbound capability this tool needs. The actual
// transport (a channel's REST API, a webhook, whatever the deployment
// wires up) lives outside this package; persistence/transport wiring is
// an external collaborator, not part of the agent core.
type Poster interface {
	Post(channelID int64, text, replyToID string) (postID, url string, err error)
}

type Tool struct {
	poster Poster
}

func New(poster Poster) *Tool {
	return &Tool{poster: poster}
}

func (t *Tool) Definition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "post_update",
		Description: "Post a status update to the current channel, optionally as a reply to an earlier message.",
		Group:       agent.GroupMessage,
		InputSchema: agent.InputSchema{
			Type: "object",
			Properties: map[string]agent.PropertySchema{
				"text":       {Type: "string", Description: "The text content of the update."},
				"reply_to":   {Type: "string", Description: "Optional id of the message this update replies to."},
			},
			Required: []string{"text"},
		},
	}
}

type postArgs struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to"`
}

type postResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
	URL     string `json:"url"`
}

func (t *Tool) Execute(raw json.RawMessage, tc agent.ToolContext) (agent.ToolResult, error) {
	var args postArgs
	if err := agent.DecodeArgs("post_update", raw, &args); err != nil {
		return agent.ToolResult{}, err
	}
	if args.Text == "" {
		return agent.ToolResult{}, agent.NewToolError(agent.KindValidation, "post_update", "text cannot be empty", nil)
	}
	if utf8.RuneCountInString(args.Text) > maxUpdateRunes {
		return agent.ToolResult{}, agent.NewToolError(agent.KindValidation, "post_update",
			"text exceeds the maximum update length", nil)
	}
	if t.poster == nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "post_update", "no poster configured for this channel", nil)
	}

	postID, url, err := t.poster.Post(tc.ChannelID, args.Text, args.ReplyTo)
	if err != nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindUpstream, "post_update", err.Error(), err)
	}

	payload, err := json.Marshal(postResponse{Success: true, PostID: postID, URL: url})
	if err != nil {
		return agent.ToolResult{}, agent.NewToolError(agent.KindInternal, "post_update", "failed to encode result", err)
	}
	return agent.ToolResult{Success: true, Content: string(payload)}, nil
}
