package source

import (
	"context"

	"dsync.evalgo.org/cache"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

// Query is the minimal read expression CacheBackend.DoFetch understands:
// the record at Identity, or (with Path set) the attribute/relationship/
// key nested under it, per Cache.Get's path convention. The schema
// compiler and query builder DSL that would normally produce richer
// expressions are out of scope for this core (spec §1).
type Query struct {
	Identity model.Identity
	Path     []string
}

// CacheBackend is the canonical backend for an application-facing store
// source (spec §4.C/§4.D combined): DoTransform patches the source's own
// cache with the transform's operations, running them through every
// registered processor, and reports the transform itself as the applied
// result. DoUpdate is a pass-through: cache mutation for an update()-
// initiated transform instead flows through Transform, either via a
// RequestStrategy's syncResults call-back after an upstream round trip,
// or — with no such strategy installed — an application calling
// Transform directly for the same effect. This keeps the cache's
// contents always attributable to exactly one code path (Transform),
// rather than racing two independent appliers of the same operations.
type CacheBackend struct {
	Cache *cache.Cache
}

// DoTransform implements Transformer.
func (b *CacheBackend) DoTransform(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	if err := b.Cache.Patch(t.Operations...); err != nil {
		return nil, err
	}
	return []op.Transform{t}, nil
}

// DoUpdate implements Updater as a pass-through; see the CacheBackend
// doc comment for why it does not itself patch the cache.
func (b *CacheBackend) DoUpdate(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	return []op.Transform{t}, nil
}

// DoFetch implements Fetcher against the backend's own cache.
func (b *CacheBackend) DoFetch(ctx context.Context, q interface{}) (interface{}, error) {
	query, ok := q.(Query)
	if !ok {
		return nil, errUnsupportedQuery(q)
	}
	v, ok := b.Cache.Get(query.Identity, query.Path...)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func errUnsupportedQuery(q interface{}) error {
	return &unsupportedQueryError{q: q}
}

type unsupportedQueryError struct{ q interface{} }

func (e *unsupportedQueryError) Error() string {
	return "source: CacheBackend does not understand query expression"
}
