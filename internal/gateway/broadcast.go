package gateway

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coredispatch/agentcore/pkg/models"
)

// DefaultSubscriberCapacity is the default bound on a subscriber's queue.
const DefaultSubscriberCapacity = 256

// Broadcaster is a multi-producer, multi-subscriber event bus. Publish never
// blocks and never fails; a subscriber whose queue is full has its oldest
// queued event dropped to make room for the new one, and its drop counter
// incremented. One subscriber falling behind has no effect on any other.
type Broadcaster struct {
	mu       sync.RWMutex
	capacity int
	nextID   uint64
	subs     map[string]*subscription
}

type subscription struct {
	mu    sync.Mutex
	ch    chan models.BroadcastEvent
	drops atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber
// capacity. A non-positive capacity falls back to DefaultSubscriberCapacity.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	return &Broadcaster{
		capacity: capacity,
		subs:     make(map[string]*subscription),
	}
}

// Subscribe registers a new subscriber and returns its opaque client id and
// receive channel. The caller must eventually call Unsubscribe.
func (b *Broadcaster) Subscribe() (clientID string, receiver <-chan models.BroadcastEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	clientID = strconv.FormatUint(b.nextID, 10)
	sub := &subscription{ch: make(chan models.BroadcastEvent, b.capacity)}
	b.subs[clientID] = sub
	return clientID, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once for the same id.
func (b *Broadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	sub, ok := b.subs[clientID]
	if ok {
		delete(b.subs, clientID)
	}
	b.mu.Unlock()

	if ok {
		sub.mu.Lock()
		close(sub.ch)
		sub.mu.Unlock()
	}
}

// Broadcast publishes an event to every live subscriber. Never blocks:
// a subscriber at capacity has its oldest queued event dropped (and its
// drop counter incremented) to make room for this one.
func (b *Broadcaster) Broadcast(event models.BroadcastEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.enqueue(event)
	}
}

func (s *subscription) enqueue(event models.BroadcastEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- event:
		return
	default:
	}

	// Queue is full: drop the oldest queued event, then enqueue the new one.
	select {
	case <-s.ch:
		s.drops.Add(1)
	default:
		// Drained concurrently by the subscriber between the two selects.
	}

	select {
	case s.ch <- event:
	default:
		// Subscriber drained and another producer refilled the slot first;
		// count this as a drop rather than block the publisher.
		s.drops.Add(1)
	}
}

// DropCount reports how many events have been dropped for a subscriber.
// Returns 0, false if the client id is unknown.
func (b *Broadcaster) DropCount(clientID string) (count uint64, ok bool) {
	b.mu.RLock()
	sub, found := b.subs[clientID]
	b.mu.RUnlock()
	if !found {
		return 0, false
	}
	return sub.drops.Load(), true
}

// Publish satisfies agent.EventSink, letting the agent core broadcast tool
// lifecycle events without importing this package's concrete type.
func (b *Broadcaster) Publish(event string, data map[string]any) {
	b.Broadcast(models.BroadcastEvent{Event: event, Data: data})
}

// SubscriberCount reports the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
