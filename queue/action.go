// Package queue implements Action and ActionQueue (spec §4.B): a single
// in-flight serial queue per source, each action retriable on failure.
// It also offers DurableLog (grounded on the teacher's queue/redis
// job-record pattern), a standalone Redis-backed job log. ActionQueue does
// not write to it; a caller that wants a durable record of its actions
// calls DurableLog itself.
package queue

import (
	"context"
	"sync"

	"dsync.evalgo.org/dsyncerr"
)

// Thunk is the work an Action wraps.
type Thunk func(ctx context.Context) error

// Action wraps a thunk and exposes a completion contract: Complete
// resolves on first success and every call after a success observes the
// same resolved state; on failure the action's processing flag resets so
// Process may be retried, and a fresh Complete channel is built for the
// next attempt.
type Action struct {
	mu        sync.Mutex
	thunk     Thunk
	done      chan struct{}
	err       error
	succeeded bool
	running   bool
}

// NewAction wraps thunk in an Action ready to be enqueued.
func NewAction(thunk Thunk) *Action {
	return &Action{thunk: thunk, done: make(chan struct{})}
}

// Complete returns the channel that closes when the action's current
// attempt finishes, and a function to read the resulting error after the
// channel closes. Each retry attempt gets a fresh channel, so callers
// must re-fetch Complete after a failed attempt if they intend to await
// the retry.
func (a *Action) Complete() (<-chan struct{}, func() error) {
	a.mu.Lock()
	ch := a.done
	a.mu.Unlock()
	return ch, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.err
	}
}

// process runs the thunk exactly once for the current attempt. It
// returns the thunk's error; on success it marks the action permanently
// succeeded (a second success call is a no-op since ActionQueue never
// re-invokes a succeeded action), on failure it resets for retry.
func (a *Action) process(ctx context.Context) error {
	a.mu.Lock()
	if a.succeeded {
		a.mu.Unlock()
		return nil
	}
	if a.running {
		a.mu.Unlock()
		return dsyncerr.QueueError(nil)
	}
	a.running = true
	a.mu.Unlock()

	err := a.thunk(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	if err == nil {
		a.succeeded = true
		a.err = nil
		close(a.done)
		return nil
	}
	a.err = err
	close(a.done)
	a.done = make(chan struct{})
	return err
}
