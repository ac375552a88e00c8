package wait

import (
	"context"
	"sync"
)

// Future is a one-shot completion slot for a single waiter. It
// completes exactly once, either with a value or with an error:
// ErrCancelled on an explicit Cancel call, or the context's own error
// (typically context.DeadlineExceeded) when Await's context expires
// first.
//
// Futures are individually cancellable even when several of them share
// the same underlying Store slot (e.g. two readers both long-polling
// the same not-yet-written version): cancelling one never affects the
// others, and completing the shared slot completes every Future still
// attached to it.
type Future[T any] struct {
	mu        sync.Mutex
	ready     chan struct{}
	completed bool
	value     T
	err       error

	// onCancel detaches this future from whatever Store slot it is
	// registered on, and is told why (ErrCancelled vs. a context
	// error) so the Store can tell a cancellation from a timeout in
	// its waiter counters. It is cleared once the future completes (by
	// either path) so it fires at most once.
	onCancel func(err error)
}

func newFuture[T any](onCancel func(err error)) *Future[T] {
	return &Future[T]{ready: make(chan struct{}), onCancel: onCancel}
}

func newCompletedFuture[T any](value T) *Future[T] {
	f := &Future[T]{ready: make(chan struct{}), completed: true, value: value}
	close(f.ready)
	return f
}

// complete resolves the future with value, err. A no-op if the future
// already completed.
func (f *Future[T]) complete(value T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.value, f.err = value, err
	f.onCancel = nil
	close(f.ready)
	f.mu.Unlock()
}

// Cancel resolves the future with ErrCancelled and detaches it from its
// Store slot. A no-op if the future already completed — cancelling an
// already-resolved future never changes its result.
func (f *Future[T]) Cancel() {
	f.detach(ErrCancelled)
}

// detach resolves the future with err and notifies onCancel why, if it
// hasn't already completed. Used by both Cancel (ErrCancelled) and
// Await's context-expiry path (ctx.Err()), so a waiter counter can tell
// an explicit cancellation from a timeout.
func (f *Future[T]) detach(err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	cb := f.onCancel
	f.completed = true
	f.err = err
	f.onCancel = nil
	close(f.ready)
	f.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Await blocks until the future completes or ctx is done, whichever
// comes first. If ctx is done first, the future is detached from its
// Store slot and resolves with ctx.Err() — distinct from the
// ErrCancelled a direct Cancel() call produces.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
	case <-ctx.Done():
		f.detach(ctx.Err())
	}
	f.mu.Lock()
	v, err := f.value, f.err
	f.mu.Unlock()
	return v, err
}

// Done reports whether the future has already completed, without
// blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}
