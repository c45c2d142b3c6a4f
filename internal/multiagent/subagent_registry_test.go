package multiagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	r := NewRegistry(cfg)
	t.Cleanup(r.Stop)
	return r
}

type recordingSink struct {
	events []struct {
		name string
		data map[string]any
	}
}

func (s *recordingSink) Publish(event string, data map[string]any) {
	s.events = append(s.events, struct {
		name string
		data map[string]any
	}{event, data})
}

func TestFinishPublishesTaskCompletedWithDocumentedKeys(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	cfg.Sink = sink
	r := NewRegistry(cfg)
	defer r.Stop()

	id, _ := r.Spawn(context.Background(), 1, "worker", "task", 0)
	if err := r.Finish(id, true, "done", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if len(sink.events) != 1 || sink.events[0].name != "execution.task_completed" {
		t.Fatalf("expected one execution.task_completed event, got %+v", sink.events)
	}
	data := sink.events[0].data
	if data["status"] != "completed" || data["label"] != "worker" || data["id"] != id {
		t.Fatalf("unexpected task_completed payload: %+v", data)
	}
}

func TestCancelPublishesTaskCompletedCancelled(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	cfg.Sink = sink
	r := NewRegistry(cfg)
	defer r.Stop()

	id, _ := r.Spawn(context.Background(), 1, "worker", "task", 0)
	if err := r.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if len(sink.events) != 1 || sink.events[0].data["status"] != "cancelled" {
		t.Fatalf("expected a cancelled task_completed event, got %+v", sink.events)
	}
}

func TestCancelAllForChannelPublishesTaskCompletedPerRun(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	cfg.Sink = sink
	r := NewRegistry(cfg)
	defer r.Stop()

	idA, _ := r.Spawn(context.Background(), 3, "a", "task a", 0)
	idB, _ := r.Spawn(context.Background(), 3, "b", "task b", 0)
	r.CancelAllForChannel(context.Background(), 3, 0)

	seen := map[string]bool{}
	for _, evt := range sink.events {
		if evt.data["status"] == "cancelled" {
			seen[evt.data["id"].(string)] = true
		}
	}
	if !seen[idA] || !seen[idB] {
		t.Fatalf("expected a task_completed event for both cancelled runs, got %+v", sink.events)
	}
}

func TestSpawnStartFinishLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	id, childCtx := r.Spawn(context.Background(), 7, "worker", "summarize the thread", 0)
	if childCtx == nil {
		t.Fatalf("expected a non-nil child context")
	}

	rec, ok := r.Get(id)
	if !ok || rec.Status != StatusPending {
		t.Fatalf("expected a pending record after Spawn, got %+v ok=%v", rec, ok)
	}

	if err := r.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec, _ = r.Get(id)
	if rec.Status != StatusRunning || rec.StartedAt.IsZero() {
		t.Fatalf("expected a running record with a start time, got %+v", rec)
	}

	if err := r.Finish(id, true, "done", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rec, _ = r.Get(id)
	if rec.Status != StatusCompleted || rec.Outcome == nil || rec.Outcome.Result != "done" {
		t.Fatalf("expected a completed record with outcome, got %+v", rec)
	}
}

func TestFinishFailureSetsFailedStatus(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Spawn(context.Background(), 1, "", "task", 0)
	if err := r.Finish(id, false, "", "boom"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rec, _ := r.Get(id)
	if rec.Status != StatusFailed || rec.Outcome.Error != "boom" {
		t.Fatalf("expected a failed record with the error message, got %+v", rec)
	}
}

func TestFinishIsNoOpOnTerminalRun(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Spawn(context.Background(), 1, "", "task", 0)
	_ = r.Finish(id, true, "first", "")
	if err := r.Finish(id, false, "second", "overwrite attempt"); err != nil {
		t.Fatalf("Finish on terminal run: %v", err)
	}
	rec, _ := r.Get(id)
	if rec.Outcome.Result != "first" {
		t.Fatalf("expected the terminal outcome to stick, got %+v", rec.Outcome)
	}
}

func TestCancelStopsChildContext(t *testing.T) {
	r := newTestRegistry(t)
	id, childCtx := r.Spawn(context.Background(), 1, "", "task", 0)
	if err := r.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case <-childCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected the child context to be cancelled")
	}
	rec, _ := r.Get(id)
	if rec.Status != StatusCancelled {
		t.Fatalf("expected a cancelled record, got %+v", rec)
	}
}

func TestCancelUnknownRunReturnsErrNotFound(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Cancel("ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSpawnAppliesTimeout(t *testing.T) {
	r := newTestRegistry(t)
	_, childCtx := r.Spawn(context.Background(), 1, "", "task", 20)
	select {
	case <-childCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected the child context to time out")
	}
}

func TestCancelAllForChannelOnlyAffectsThatChannel(t *testing.T) {
	r := newTestRegistry(t)
	idA, ctxA := r.Spawn(context.Background(), 1, "", "task a", 0)
	idB, ctxB := r.Spawn(context.Background(), 2, "", "task b", 0)

	r.CancelAllForChannel(context.Background(), 1, 50*time.Millisecond)

	select {
	case <-ctxA.Done():
	default:
		t.Fatalf("expected channel 1's run to be cancelled")
	}
	select {
	case <-ctxB.Done():
		t.Fatalf("did not expect channel 2's run to be cancelled")
	default:
	}

	recA, _ := r.Get(idA)
	recB, _ := r.Get(idB)
	if recA.Status != StatusCancelled {
		t.Fatalf("expected channel 1's record cancelled, got %+v", recA)
	}
	if recB.Status != StatusPending {
		t.Fatalf("expected channel 2's record untouched, got %+v", recB)
	}
}

func TestListByChannel(t *testing.T) {
	r := newTestRegistry(t)
	r.Spawn(context.Background(), 5, "", "a", 0)
	r.Spawn(context.Background(), 5, "", "b", 0)
	r.Spawn(context.Background(), 6, "", "c", 0)

	runs := r.ListByChannel(5)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for channel 5, got %d", len(runs))
	}
}

func TestPersistAndRestoreMarksMidFlightRunsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subagents.json")
	cfg := DefaultConfig()
	cfg.PersistPath = path
	cfg.SweepInterval = time.Hour
	r1 := NewRegistry(cfg)
	id, _ := r1.Spawn(context.Background(), 1, "", "in flight", 0)
	r1.Stop()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected a persisted registry file: %v", err)
	}

	r2 := NewRegistry(cfg)
	defer r2.Stop()
	rec, ok := r2.Get(id)
	if !ok {
		t.Fatalf("expected the restored registry to contain the prior run")
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected a restored mid-flight run to be marked failed, got %+v", rec)
	}
}

func TestPersistedFileIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subagents.json")
	cfg := DefaultConfig()
	cfg.PersistPath = path
	cfg.SweepInterval = time.Hour
	r := NewRegistry(cfg)
	defer r.Stop()
	r.Spawn(context.Background(), 1, "label", "task", 0)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded map[string]*Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(decoded))
	}
}
