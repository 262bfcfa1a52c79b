// Package source implements the Source base (spec §4.D): a concrete bus
// of capability mixins (Transformable, Updatable, Fetchable) that call
// into an embedded Notifier/ActionQueue/AppliedLog and delegate the
// actual work to a concrete Backend the source wraps. This is the Go
// rendering of §9's design note: rather than prototypal mixins, the
// source is a concrete struct exposing an event bus field, and the
// capability "interfaces" are concrete wrapper methods calling an
// abstract backend the concrete source overrides.
package source

import (
	"context"

	"dsync.evalgo.org/cache"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/notifier"
	"dsync.evalgo.org/op"
	"dsync.evalgo.org/queue"
)

// Transformer is implemented by a backend that can ingest a Transform
// and apply it, returning the (possibly annotated) resulting transforms.
type Transformer interface {
	DoTransform(ctx context.Context, t op.Transform) ([]op.Transform, error)
}

// Updater is implemented by a backend that can forward a Transform to
// some egress target (e.g. an upstream JSON:API server) and report the
// transforms it resulted in.
type Updater interface {
	DoUpdate(ctx context.Context, t op.Transform) ([]op.Transform, error)
}

// Fetcher is implemented by a backend that can resolve a query
// expression against some egress target.
type Fetcher interface {
	DoFetch(ctx context.Context, q interface{}) (interface{}, error)
}

// Backend groups the optional capability interfaces a concrete source
// wraps. A backend need only implement the subset of methods its source
// actually supports; Source checks with type assertions at call time.
type Backend interface{}

// Source is the base every concrete source (cache-backed store,
// JSON:API, local storage) embeds. It owns one Cache, one Notifier and
// two ActionQueues; Transform/Update/Fetch below are the capability
// mixins from §4.D. Transform gets its own queue, separate from the one
// shared by Update/Fetch: spec §4.G's request/sync-back round trip calls
// Transform on the *originating* source from inside a listener that
// itself runs inside that source's in-flight Update/Fetch action, so
// Transform must be able to make progress on its own queue rather than
// waiting behind the very action that is invoking it.
type Source struct {
	Name string
	Cache *cache.Cache
	Events *notifier.Notifier
	// Queue serializes Update and Fetch, which together form the
	// egress side of a source (calls out to a remote backend).
	Queue *queue.ActionQueue
	// TransformQueue serializes Transform independently of Queue, so a
	// Transform invoked as sync-back from within an Update/Fetch
	// listener is not starved by the very action awaiting it.
	TransformQueue *queue.ActionQueue
	Applied        *AppliedLog
	Backend        Backend
	log            *dsynclog.Logger
}

// New builds a Source wrapping backend. cache may be nil for sources
// that don't maintain their own relational cache (e.g. a pure egress
// JSON:API source whose cache lives on the store that wraps it).
func New(name string, backend Backend, c *cache.Cache, log *dsynclog.Logger) *Source {
	if log == nil {
		log = dsynclog.ForComponent(nil, name)
	}
	return &Source{
		Name:           name,
		Cache:          c,
		Events:         notifier.New(log),
		Queue:          queue.New(log),
		TransformQueue: queue.New(log),
		Applied:        NewAppliedLog(10000, 0),
		Backend:        backend,
		log:            log,
	}
}

// Transform implements the Transformable mixin (§4.D): idempotent on
// t.ID, queued through the source's TransformQueue, wrapped by a series
// beforeTransform emission and a settle transform emission per returned
// transform.
func (s *Source) Transform(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	if prior, ok := s.Applied.Get(t.ID); ok {
		return prior, nil
	}
	backend, ok := s.Backend.(Transformer)
	if !ok {
		return nil, errNotSupported(s.Name, "transform")
	}

	var result []op.Transform
	ch, errFn := s.TransformQueue.Push(ctx, func(ctx context.Context) error {
		if err := s.Events.Series(ctx, "beforeTransform", t); err != nil {
			return err
		}
		out, err := backend.DoTransform(ctx, t)
		if err != nil {
			return err
		}
		for _, rt := range out {
			s.Applied.Put(rt.ID, out)
			s.Events.Settle(ctx, "transform", rt)
		}
		result = out
		return nil
	})
	<-ch
	if err := errFn(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update implements the Updatable mixin (§4.D): a series beforeUpdate
// emission (the hook RequestStrategy uses to forward the operation to a
// remote source before this source processes it) followed by the
// backend call and a settle update emission.
func (s *Source) Update(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	backend, ok := s.Backend.(Updater)
	if !ok {
		return nil, errNotSupported(s.Name, "update")
	}

	var result []op.Transform
	ch, errFn := s.Queue.Push(ctx, func(ctx context.Context) error {
		if err := s.Events.Series(ctx, "beforeUpdate", t); err != nil {
			return err
		}
		out, err := backend.DoUpdate(ctx, t)
		if err != nil {
			return err
		}
		result = out
		s.Events.Settle(ctx, "update", t, out)
		return nil
	})
	<-ch
	if err := errFn(); err != nil {
		return nil, err
	}
	return result, nil
}

// Fetch implements the Fetchable mixin (§4.D): a series beforeQuery
// emission followed by the backend call and a settle query emission.
func (s *Source) Fetch(ctx context.Context, q interface{}) (interface{}, error) {
	backend, ok := s.Backend.(Fetcher)
	if !ok {
		return nil, errNotSupported(s.Name, "fetch")
	}

	var result interface{}
	ch, errFn := s.Queue.Push(ctx, func(ctx context.Context) error {
		if err := s.Events.Series(ctx, "beforeQuery", q); err != nil {
			return err
		}
		out, err := backend.DoFetch(ctx, q)
		if err != nil {
			return err
		}
		result = out
		s.Events.Settle(ctx, "query", q, out)
		return nil
	})
	<-ch
	if err := errFn(); err != nil {
		return nil, err
	}
	return result, nil
}

func errNotSupported(sourceName, capability string) error {
	return &unsupportedCapabilityError{sourceName: sourceName, capability: capability}
}

type unsupportedCapabilityError struct {
	sourceName string
	capability string
}

func (e *unsupportedCapabilityError) Error() string {
	return "source " + e.sourceName + " does not support " + e.capability
}
