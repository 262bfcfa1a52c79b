package queue

import (
	"context"
	"sync"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/dsynclog"
)

// ActionQueue holds a FIFO of actions with exactly one in-flight at a
// time. When the head action fails, the queue suspends at the head (the
// action is not removed) until the caller calls Retry or Skip.
type ActionQueue struct {
	mu       sync.Mutex
	items    []*Action
	running  bool
	suspended bool
	log      *dsynclog.Logger
}

// New builds an empty ActionQueue. log may be nil.
func New(log *dsynclog.Logger) *ActionQueue {
	return &ActionQueue{log: log}
}

// Push enqueues thunk as a new Action and starts the queue pump if it is
// idle. It returns the enqueued action's completion channel/err-reader
// pair, mirroring Enqueue's "returns the action's complete awaitable"
// contract from §4.B.
func (q *ActionQueue) Push(ctx context.Context, thunk Thunk) (<-chan struct{}, func() error) {
	a := NewAction(thunk)
	q.mu.Lock()
	q.items = append(q.items, a)
	shouldPump := !q.running && !q.suspended
	q.mu.Unlock()

	ch, errFn := a.Complete()
	if shouldPump {
		go q.pump(ctx)
	}
	return ch, errFn
}

func (q *ActionQueue) pump(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.running || q.suspended || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		q.running = true
		head := q.items[0]
		q.mu.Unlock()

		err := head.process(ctx)

		q.mu.Lock()
		q.running = false
		if err != nil {
			q.suspended = true
			if q.log != nil {
				q.log.WithError(err).Warn("action queue suspended at head after failure")
			}
			q.mu.Unlock()
			return
		}
		// success: shift the head and continue pumping.
		q.items = q.items[1:]
		q.mu.Unlock()
	}
}

// Retry re-attempts the suspended head action. It is an error to call
// Retry when the queue is not suspended.
func (q *ActionQueue) Retry(ctx context.Context) error {
	q.mu.Lock()
	if !q.suspended {
		q.mu.Unlock()
		return dsyncerr.QueueError(nil)
	}
	q.suspended = false
	q.mu.Unlock()
	go q.pump(ctx)
	return nil
}

// Skip drops the suspended head action without retrying it and resumes
// pumping the rest of the queue. It is an error to call Skip when the
// queue is not suspended.
func (q *ActionQueue) Skip(ctx context.Context) error {
	q.mu.Lock()
	if !q.suspended {
		q.mu.Unlock()
		return dsyncerr.QueueError(nil)
	}
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	q.suspended = false
	q.mu.Unlock()
	go q.pump(ctx)
	return nil
}

// Len reports the number of actions currently queued, including the
// in-flight or suspended head.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Suspended reports whether the queue is currently blocked on a failed
// head action awaiting Retry or Skip.
func (q *ActionQueue) Suspended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suspended
}
