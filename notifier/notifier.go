// Package notifier implements the Evented multi-listener pub-sub used by
// every source (spec §4.A). Rather than prototypal mixins, a Notifier is
// a concrete bus field embedded in a source; the four dispatch
// disciplines (emit/settle/series/resolve) are plain functions over the
// same listener list, per §9's design note, not separate listener types.
package notifier

import (
	"context"
	"strings"
	"sync"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/dsynclog"
)

// Listener is a registered callback. It receives whatever arguments the
// emitter passed and returns an optional result plus error; callers that
// don't care about the return value for a given discipline simply
// ignore it.
type Listener func(ctx context.Context, args ...interface{}) (interface{}, error)

type registration struct {
	id       uint64
	receiver interface{}
	fn       Listener
	once     bool
}

// Notifier is the event bus embedded in a Source. Event names support
// whitespace-separated aliases per §9: registering "update create" binds
// the same listener under both names in one call, normalized at the call
// site into the intern table once.
type Notifier struct {
	mu        sync.Mutex
	listeners map[string][]*registration
	nextID    uint64
	log       *dsynclog.Logger
}

// New builds an empty Notifier. log may be nil, in which case settle-mode
// listener failures are silently swallowed rather than logged.
func New(log *dsynclog.Logger) *Notifier {
	return &Notifier{listeners: make(map[string][]*registration), log: log}
}

func splitNames(event string) []string {
	return strings.Fields(event)
}

// On registers fn for event (or whitespace-separated events), optionally
// bound to receiver for documentation/debugging purposes. It returns a
// token that Off can use to deregister exactly this registration.
func (n *Notifier) On(event string, receiver interface{}, fn Listener) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	reg := &registration{id: n.nextID, receiver: receiver, fn: fn}
	for _, name := range splitNames(event) {
		n.listeners[name] = append(n.listeners[name], reg)
	}
	return reg.id
}

// One registers a listener that auto-deregisters after its first
// invocation, regardless of which discipline triggered it.
func (n *Notifier) One(event string, receiver interface{}, fn Listener) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	reg := &registration{id: n.nextID, receiver: receiver, fn: fn, once: true}
	for _, name := range splitNames(event) {
		n.listeners[name] = append(n.listeners[name], reg)
	}
	return reg.id
}

// Off deregisters the listener previously returned by On/One, across
// every event name it was registered under.
func (n *Notifier) Off(token uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, regs := range n.listeners {
		filtered := regs[:0]
		for _, r := range regs {
			if r.id != token {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			delete(n.listeners, name)
		} else {
			n.listeners[name] = filtered
		}
	}
}

func (n *Notifier) snapshot(event string) []*registration {
	n.mu.Lock()
	defer n.mu.Unlock()
	regs := n.listeners[event]
	out := make([]*registration, len(regs))
	copy(out, regs)
	return out
}

func (n *Notifier) removeOnce(reg *registration) {
	if !reg.once {
		return
	}
	n.Off(reg.id)
}

// Emit is fire-and-forget: synchronous invocation of each listener in
// registration order, return values and errors ignored.
func (n *Notifier) Emit(ctx context.Context, event string, args ...interface{}) {
	for _, reg := range n.snapshot(event) {
		_, _ = reg.fn(ctx, args...)
		n.removeOnce(reg)
	}
}

// Settle awaits every listener sequentially, logging and continuing past
// individual failures; it resolves (returns nil) once all have settled.
func (n *Notifier) Settle(ctx context.Context, event string, args ...interface{}) {
	for _, reg := range n.snapshot(event) {
		if _, err := reg.fn(ctx, args...); err != nil && n.log != nil {
			n.log.WithField("event", event).WithError(err).Warn("listener failed during settle emit")
		}
		n.removeOnce(reg)
	}
}

// Series awaits listeners sequentially; the first failure aborts the
// remaining listeners and is returned to the caller.
func (n *Notifier) Series(ctx context.Context, event string, args ...interface{}) error {
	for _, reg := range n.snapshot(event) {
		_, err := reg.fn(ctx, args...)
		n.removeOnce(reg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Resolve invokes listeners sequentially; the first to return a truthy
// (non-nil) value wins and its value is returned. If a listener errors,
// Resolve returns that error immediately, mirroring Series' abort-on-
// failure behavior. If every listener runs to completion without ever
// returning a non-nil value (including the case of no listeners at
// all), Resolve rejects with a dsyncerr NotResolved error per §4.A
// rather than reporting a silent (nil, nil) success.
func (n *Notifier) Resolve(ctx context.Context, event string, args ...interface{}) (interface{}, error) {
	for _, reg := range n.snapshot(event) {
		val, err := reg.fn(ctx, args...)
		n.removeOnce(reg)
		if err != nil {
			return nil, err
		}
		if val != nil {
			return val, nil
		}
	}
	return nil, dsyncerr.NotResolved(event)
}

// HasListeners reports whether any listener is registered for event.
func (n *Notifier) HasListeners(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[event]) > 0
}
