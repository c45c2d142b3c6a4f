// Package sessions implements session identity and conversation history
// persistence behind a single Store interface, with in-memory, Postgres,
// and SQLite backings.
package sessions

import (
	"context"
	"errors"

	"github.com/coredispatch/agentcore/pkg/models"
)

var ErrNotFound = errors.New("session not found")

// Store is the persistence contract the Dispatcher depends on: resolving
// or creating a session for a (channel_type, channel_id, chat_id) tuple,
// and appending/loading its message history.
type Store interface {
	// GetOrCreate returns the session for the given id, creating one if it
	// does not yet exist.
	GetOrCreate(ctx context.Context, id string, channelID int64, channelType, chatID string) (models.Session, error)

	// AppendMessages appends messages to a session's history, in order.
	AppendMessages(ctx context.Context, sessionID string, messages []models.Message) error

	// History loads a session's message history, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]models.Message, error)

	Close() error
}
