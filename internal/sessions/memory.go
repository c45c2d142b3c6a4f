package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/coredispatch/agentcore/pkg/models"
)

// MemoryStore is an in-process Store, used in tests and for channels that
// don't need history to survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	history  map[string][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		history:  make(map[string][]models.Message),
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id string, channelID int64, channelType, chatID string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	now := time.Now()
	s := models.Session{ID: id, ChannelID: channelID, ChannelType: channelType, ChatID: chatID, CreatedAt: now, UpdatedAt: now}
	m.sessions[id] = s
	return s, nil
}

func (m *MemoryStore) AppendMessages(ctx context.Context, sessionID string, messages []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.UpdatedAt = time.Now()
		m.sessions[sessionID] = s
	}
	m.history[sessionID] = append(m.history[sessionID], messages...)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	full := m.history[sessionID]
	if limit <= 0 || limit >= len(full) {
		out := make([]models.Message, len(full))
		copy(out, full)
		return out, nil
	}
	out := make([]models.Message, limit)
	copy(out, full[len(full)-limit:])
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
