package service

import (
	"context"
	"sync/atomic"

	"github.com/listenupapp/listenup-bookmarks/internal/errors"
)

// ErrCancelled resolves a future whose operation was cancelled before it
// started executing.
var ErrCancelled = errors.Internal("operation cancelled before execution")

const (
	statePending int32 = iota
	stateRunning
	stateSettled
	stateCancelled
)

// Future is the pending result of one queued operation.
type Future[T any] struct {
	state atomic.Int32
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Await blocks until the operation settles or ctx is done. Waiting does not
// cancel the operation itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel removes the operation from consideration if it has not started yet
// and reports whether it did. An operation already running runs to completion;
// its result is simply discarded.
func (f *Future[T]) Cancel() bool {
	if f.state.CompareAndSwap(statePending, stateCancelled) {
		f.err = ErrCancelled
		close(f.done)
		return true
	}
	return false
}

// begin transitions pending → running. The worker skips execution when it
// fails, which means the future was cancelled in the queue.
func (f *Future[T]) begin() bool {
	return f.state.CompareAndSwap(statePending, stateRunning)
}

// settle resolves the future. Safe to call at most once per state path; a
// cancelled future silently ignores the late result.
func (f *Future[T]) settle(value T, err error) {
	if f.state.CompareAndSwap(stateRunning, stateSettled) ||
		f.state.CompareAndSwap(statePending, stateSettled) {
		f.value, f.err = value, err
		close(f.done)
	}
}
