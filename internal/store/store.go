// Package store holds the engine's in-memory bookmark state: an immutable
// nested mapping Account → Book → BookAggregate behind an atomically swapped
// snapshot reference. It is a cache over durable local storage and the remote
// annotation service, never the source of truth.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/id"
)

// Snapshot is one immutable generation of bookmark state. Readers may hold a
// snapshot indefinitely; it never changes underneath them.
type Snapshot map[domain.AccountID]map[domain.BookID]domain.BookAggregate

// Aggregate returns the aggregate for an account/book pair, or an empty one.
func (s Snapshot) Aggregate(account domain.AccountID, book domain.BookID) domain.BookAggregate {
	return aggregateFor(s, account, book)
}

// Store wraps the current snapshot. Mutation happens only on the sync
// coordinator's single worker, so updates need no lock: writers swap the
// snapshot reference atomically and readers always see a fully-formed
// generation.
type Store struct {
	current atomic.Value // Snapshot

	mu       sync.Mutex
	watchers map[string]chan Snapshot
}

// New creates an empty store.
func New() *Store {
	s := &Store{
		watchers: make(map[string]chan Snapshot),
	}
	s.current.Store(Snapshot{})
	return s
}

// Snapshot returns the current generation. Safe from any goroutine.
func (s *Store) Snapshot() Snapshot {
	return s.current.Load().(Snapshot)
}

// Update applies fn to the current snapshot and installs the result. Must only
// be called from the coordinator's worker; single-writer discipline is what
// keeps this race-free without a lock around the read-modify-write.
func (s *Store) Update(fn func(Snapshot) Snapshot) Snapshot {
	next := fn(s.Snapshot())
	s.current.Store(next)
	s.notify(next)
	return next
}

// Watch registers for change notifications. The returned channel receives the
// newest snapshot after each update; a slow watcher only ever misses
// intermediate generations, never the latest. The cancel func must be called
// when done.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	key := id.MustGenerate("watch")

	s.mu.Lock()
	s.watchers[key] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.watchers[key]; ok {
			delete(s.watchers, key)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// notify pushes the new snapshot to every watcher, latest-wins.
func (s *Store) notify(next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		// Replace a pending stale snapshot rather than blocking the worker.
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}
