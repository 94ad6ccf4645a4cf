// Package events implements the engine's event stream: a multi-producer,
// multi-consumer broadcast bus scoped to the coordinator's lifetime.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/id"
)

// Type represents the type of engine event.
type Type string

const (
	// TypeSyncStarted fires when a sync operation for an account begins.
	TypeSyncStarted Type = "bookmark.sync_started"
	// TypeSyncFinished fires when a sync operation for an account completes,
	// successfully or not.
	TypeSyncFinished Type = "bookmark.sync_finished"
	// TypeSaved fires when a bookmark has been written to local storage.
	TypeSaved Type = "bookmark.saved"
	// TypeDeleted fires when a bookmark has been removed from local storage.
	TypeDeleted Type = "bookmark.deleted"
)

// Event is one engine notification.
type Event struct {
	Type      Type
	Timestamp time.Time
	AccountID domain.AccountID
	// Record is set for TypeSaved and TypeDeleted.
	Record *domain.Bookmark
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events; the engine never blocks on it.
const subscriberBuffer = 64

// Bus broadcasts events to registered subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	closed      bool
	logger      *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
		logger:      logger,
	}
}

// Subscribe registers a subscriber. The cancel func releases the subscription
// and closes the channel; it must be called when the subscriber is done and is
// safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	key := id.MustGenerate("sub")

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[key] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[key]; ok {
			delete(b.subscribers, key)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts an event to all subscribers. Never blocks: a full
// subscriber drops the event.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for key, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("event subscriber full, dropping event",
				"subscriber", key,
				"event_type", event.Type,
			)
		}
	}
}

// Close shuts the bus down and closes every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, ch := range b.subscribers {
		delete(b.subscribers, key)
		close(ch)
	}
}
