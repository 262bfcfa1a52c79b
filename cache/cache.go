// Package cache implements the relational in-memory record store and its
// pluggable operation processors (spec §4.C — the hard part). Patch
// applies operations one at a time; each primary operation is wrapped by
// every registered processor's before/after/finally hooks, and any
// operations those hooks emit are themselves run through the full cycle
// before the next caller-supplied operation begins.
package cache

import (
	"fmt"
	"sync"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

// Processor is a pluggable observer on Cache.Patch. Before returns
// operations to apply ahead of the primary op (e.g. detach an old
// inverse); After returns operations to apply once the primary op has
// landed (e.g. remove dependents); Finally returns operations to apply
// once the primary op and its After operations have all been processed
// (post-commit housekeeping, e.g. dropping a removed record's reverse
// index entry). Emitted operations pass through the same three hooks on
// every processor, so implementations must keep them bounded and
// structurally smaller than the op that produced them.
type Processor interface {
	Before(c *Cache, o op.Operation) ([]op.Operation, error)
	After(c *Cache, o op.Operation) ([]op.Operation, error)
	Finally(c *Cache, o op.Operation) ([]op.Operation, error)
}

// Resettable is implemented by processors that hold state derived from
// the cache's contents (the integrity processor's reverse index); Reset
// is called after Cache.Reset replaces the record map wholesale.
type Resettable interface {
	Reset(c *Cache)
}

// Cache stores records under [type][id] and runs every patch through the
// registered processors.
type Cache struct {
	mu         sync.RWMutex
	schema     *model.Schema
	records    map[string]map[string]*model.Record
	processors []Processor
	log        *dsynclog.Logger
}

// New builds an empty Cache backed by schema, running ops through
// processors in registration order.
func New(schema *model.Schema, log *dsynclog.Logger, processors ...Processor) *Cache {
	return &Cache{
		schema:     schema,
		records:    make(map[string]map[string]*model.Record),
		processors: processors,
		log:        log,
	}
}

// Schema returns the cache's model schema.
func (c *Cache) Schema() *model.Schema { return c.schema }

// GetRecord returns the stored record for id, if present. The returned
// record must be treated as read-only; callers that need to mutate it
// should go through Patch.
func (c *Cache) GetRecord(id model.Identity) (*model.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getRecordLocked(id)
}

func (c *Cache) getRecordLocked(id model.Identity) (*model.Record, bool) {
	byID, ok := c.records[id.Type]
	if !ok {
		return nil, false
	}
	r, ok := byID[id.ID]
	return r, ok
}

// Has reports whether id exists, and if parts are given, whether the
// nested attribute/relationship/key path under it is populated. parts[0]
// must be "attributes", "relationships" or "keys" when given.
func (c *Cache) Has(id model.Identity, parts ...string) bool {
	_, ok := c.Get(id, parts...)
	return ok
}

// Get returns the value at id (the whole record, if no parts given) or
// at the nested attribute/relationship path described by parts.
func (c *Cache) Get(id model.Identity, parts ...string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.getRecordLocked(id)
	if !ok {
		return nil, false
	}
	if len(parts) == 0 {
		return r, true
	}
	switch parts[0] {
	case "attributes":
		if len(parts) < 2 || r.Attributes == nil {
			return nil, false
		}
		v, ok := r.Attributes[parts[1]]
		return v, ok
	case "relationships":
		if len(parts) < 2 || r.Relationships == nil {
			return nil, false
		}
		rel := parts[1]
		v, ok := r.Relationships[rel]
		if !ok {
			return nil, false
		}
		switch slot := v.(type) {
		case model.HasOne:
			if slot.IsNull() {
				return nil, false
			}
			return slot.Identity, true
		case model.HasMany:
			return slot, true
		}
		return nil, false
	case "keys":
		if len(parts) < 2 || r.Keys == nil {
			return nil, false
		}
		v, ok := r.Keys[parts[1]]
		return v, ok
	default:
		return nil, false
	}
}

// Reset replaces the entire record map and re-initializes every
// Resettable processor (rebuilding the reverse index from scratch, per
// round-trip law R1).
func (c *Cache) Reset(data map[string]map[string]*model.Record) {
	c.mu.Lock()
	cloned := make(map[string]map[string]*model.Record, len(data))
	for modelType, byID := range data {
		inner := make(map[string]*model.Record, len(byID))
		for id, r := range byID {
			inner[id] = r.Clone()
		}
		cloned[modelType] = inner
	}
	c.records = cloned
	c.mu.Unlock()

	for _, p := range c.processors {
		if r, ok := p.(Resettable); ok {
			r.Reset(c)
		}
	}
	c.seedProcessors()
}

// seedProcessors feeds every existing record through an addRecord pass so
// processors (the reverse index, in particular) observe the post-reset
// state the same way they would if each record had been added one at a
// time.
func (c *Cache) seedProcessors() {
	c.mu.RLock()
	var records []*model.Record
	for _, byID := range c.records {
		for _, r := range byID {
			records = append(records, r)
		}
	}
	c.mu.RUnlock()

	for _, r := range records {
		for _, p := range c.processors {
			_, _ = p.After(c, op.NewAddRecord(r))
		}
	}
}

// Dump returns a snapshot of the cache's records, for round-trip testing
// against Reset (R1).
func (c *Cache) Dump() map[string]map[string]*model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]*model.Record, len(c.records))
	for modelType, byID := range c.records {
		inner := make(map[string]*model.Record, len(byID))
		for id, r := range byID {
			inner[id] = r.Clone()
		}
		out[modelType] = inner
	}
	return out
}

// Patch applies ops atomically, one at a time and in order, running each
// through the full processor before/after/finally cycle.
func (c *Cache) Patch(ops ...op.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range ops {
		if err := c.patchOneLocked(o, 0); err != nil {
			return err
		}
	}
	return nil
}

const maxProcessorDepth = 64

// patchOneLocked applies a single operation and its processor-emitted
// follow-ups. depth guards against runaway recursion from a misbehaving
// processor; well-behaved processors terminate long before this bound
// per §4.C's "bounded, structurally smaller follow-ups" requirement.
func (c *Cache) patchOneLocked(o op.Operation, depth int) error {
	if depth > maxProcessorDepth {
		return fmt.Errorf("processor recursion exceeded depth %d for op %s on %s", maxProcessorDepth, o.Op, o.Ident)
	}

	for _, p := range c.processors {
		extra, err := p.Before(c, o)
		if err != nil {
			return err
		}
		for _, e := range extra {
			if err := c.patchOneLocked(e, depth+1); err != nil {
				return err
			}
		}
	}

	if err := c.applyPrimaryLocked(o); err != nil {
		return err
	}

	for _, p := range c.processors {
		extra, err := p.After(c, o)
		if err != nil {
			return err
		}
		for _, e := range extra {
			if err := c.patchOneLocked(e, depth+1); err != nil {
				return err
			}
		}
	}

	for _, p := range c.processors {
		extra, err := p.Finally(c, o)
		if err != nil {
			return err
		}
		for _, e := range extra {
			if err := c.patchOneLocked(e, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Cache) ensureBucket(modelType string) map[string]*model.Record {
	byID, ok := c.records[modelType]
	if !ok {
		byID = make(map[string]*model.Record)
		c.records[modelType] = byID
	}
	return byID
}

func (c *Cache) applyPrimaryLocked(o op.Operation) error {
	switch o.Op {
	case op.AddRecord:
		byID := c.ensureBucket(o.Record.Type)
		byID[o.Record.ID] = o.Record.Clone()
		return nil

	case op.ReplaceRecord:
		byID := c.ensureBucket(o.Record.Type)
		byID[o.Record.ID] = o.Record.Clone()
		return nil

	case op.RemoveRecord:
		byID, ok := c.records[o.Ident.Type]
		if !ok {
			return dsyncerr.RecordNotFound(o.Ident.Type, o.Ident.ID)
		}
		if _, ok := byID[o.Ident.ID]; !ok {
			return dsyncerr.RecordNotFound(o.Ident.Type, o.Ident.ID)
		}
		delete(byID, o.Ident.ID)
		return nil

	case op.ReplaceKey:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		if r.Keys == nil {
			r.Keys = make(map[string]string)
		}
		r.Keys[o.Key] = fmt.Sprintf("%v", o.Value)
		return nil

	case op.ReplaceAttribute:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]interface{})
		}
		r.Attributes[o.Attribute] = o.Value
		return nil

	case op.AddToHasMany:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		c.ensureRelationships(r)
		hm := r.Relationships.HasManyAt(o.Relationship)
		if hm == nil {
			hm = model.HasMany{}
		}
		hm.Add(o.RelatedRecord)
		r.Relationships[o.Relationship] = hm
		return nil

	case op.RemoveFromHasMany:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		c.ensureRelationships(r)
		hm := r.Relationships.HasManyAt(o.Relationship)
		hm.Remove(o.RelatedRecord)
		r.Relationships[o.Relationship] = hm
		return nil

	case op.ReplaceHasMany:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		c.ensureRelationships(r)
		r.Relationships[o.Relationship] = o.RelatedSet.Clone()
		return nil

	case op.ReplaceHasOne:
		r, err := c.mustRecordLocked(o.Ident)
		if err != nil {
			return err
		}
		c.ensureRelationships(r)
		if o.RelatedIsNull {
			r.Relationships[o.Relationship] = model.HasOne{}
		} else {
			r.Relationships[o.Relationship] = model.NewHasOne(o.RelatedRecord)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation kind: %s", o.Op)
	}
}

func (c *Cache) ensureRelationships(r *model.Record) {
	if r.Relationships == nil {
		r.Relationships = make(model.Relationships)
	}
}

func (c *Cache) mustRecordLocked(id model.Identity) (*model.Record, error) {
	r, ok := c.getRecordLocked(id)
	if !ok {
		return nil, dsyncerr.RecordNotFound(id.Type, id.ID)
	}
	return r, nil
}
