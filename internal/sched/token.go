package sched

import (
	"context"
	"sort"
	"sync"
)

// CancellationToken is a shared cancel flag with registered callbacks. It
// never owns the work it cancels: tasks observe it between units of work
// and stop themselves, so an in-flight syscall is never interrupted.
type CancellationToken struct {
	mu        sync.Mutex
	done      chan struct{}
	cancelled bool
	callbacks map[uint64]func()
	nextID    uint64
}

// NewToken returns an uncancelled token.
func NewToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel flips the flag and runs the registered callbacks once, in
// registration order. Subsequent calls are no-ops.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	ids := make([]uint64, 0, len(t.callbacks))
	for id := range t.callbacks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	callbacks := make([]func(), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, t.callbacks[id])
	}
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancellationToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed on cancellation.
func (t *CancellationToken) Done() <-chan struct{} { return t.done }

// OnCancel registers fn to run when the token is cancelled. If the token is
// already cancelled fn runs immediately.
func (t *CancellationToken) OnCancel(fn func()) {
	t.register(fn)
}

// register adds fn and returns a removal func, so short-lived registrations
// do not accumulate on a long-lived token.
func (t *CancellationToken) register(fn func()) func() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	if t.callbacks == nil {
		t.callbacks = make(map[uint64]func())
	}
	id := t.nextID
	t.nextID++
	t.callbacks[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.callbacks, id)
		t.mu.Unlock()
	}
}

// Context derives a context cancelled alongside the token. The returned
// CancelFunc also drops the token registration.
func (t *CancellationToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	remove := t.register(cancel)
	return ctx, func() {
		remove()
		cancel()
	}
}
