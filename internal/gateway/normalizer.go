package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/coredispatch/agentcore/pkg/models"
)

// RawMessage is what a channel adapter hands to the gateway before
// normalization: the transport-native fields below. It carries no
// free-form metadata.
type RawMessage struct {
	ChannelType string
	ChannelID   int64
	ChatID      string
	UserID      string
	UserName    string
	Text        string
	MessageID   string
	SessionMode string
}

// Normalizer converts a channel adapter's raw inbound message into the
// canonical NormalizedMessage the Dispatcher consumes.
type Normalizer struct{}

// NewNormalizer creates a message normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize converts a raw inbound message into its canonical form.
// Trims surrounding whitespace from Text; all other fields pass through.
func (n *Normalizer) Normalize(raw RawMessage) models.NormalizedMessage {
	return models.NormalizedMessage{
		ChannelID:   raw.ChannelID,
		ChannelType: raw.ChannelType,
		ChatID:      raw.ChatID,
		UserID:      raw.UserID,
		UserName:    raw.UserName,
		Text:        strings.TrimSpace(raw.Text),
		MessageID:   raw.MessageID,
		SessionMode: raw.SessionMode,
	}
}

// DeriveSessionID produces a deterministic, opaque session identifier for a
// (channel_type, channel_id, chat_id) tuple. Two normalized messages on the
// same conversation always derive the same session id, so the Dispatcher
// can resolve-or-create a session without a lookup table keyed by raw
// transport strings.
func DeriveSessionID(channelType string, channelID int64, chatID string) string {
	h := sha256.New()
	h.Write([]byte(channelType))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(channelID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(chatID))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
