package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/coredispatch/agentcore/pkg/models"
)

func TestSQLiteStoreGetOrCreatePersists(t *testing.T) {
	store, err := NewSQLiteStore("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := store.GetOrCreate(ctx, "sess-1", 42, "discord", "chat-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ChannelID != 42 || sess.ChannelType != "discord" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	again, err := store.GetOrCreate(ctx, "sess-1", 99, "slack", "chat-2")
	if err != nil {
		t.Fatalf("GetOrCreate second call: %v", err)
	}
	if again.ChannelID != 42 {
		t.Fatalf("expected existing session to be returned unchanged, got %+v", again)
	}
}

func TestSQLiteStoreAppendAndHistory(t *testing.T) {
	store, err := NewSQLiteStore("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "s1", 1, "slack", "c1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hello", CreatedAt: time.Now()},
		{Role: models.RoleAssistant, Content: "hi there", CreatedAt: time.Now()},
	}
	if err := store.AppendMessages(ctx, "s1", msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi there" {
		t.Fatalf("unexpected ordering: %+v", history)
	}
}

func TestSQLiteStoreHistoryRespectsLimit(t *testing.T) {
	store, err := NewSQLiteStore("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.GetOrCreate(ctx, "s2", 1, "slack", "c1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 5; i++ {
		msg := []models.Message{{Role: models.RoleUser, Content: "msg", CreatedAt: time.Now()}}
		if err := store.AppendMessages(ctx, "s2", msg); err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
	}

	history, err := store.History(ctx, "s2", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit of 2 messages, got %d", len(history))
	}
}
