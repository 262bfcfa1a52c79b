package cache

import (
	"fmt"
	"sync"

	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

// revPath identifies one relationship slot pointing at a related record:
// the owning record and the relationship name. The related record itself
// is not part of the path; it is the key the path is stored under.
type revPath struct {
	Owner        model.Identity
	Relationship string
}

func (p revPath) String() string {
	return fmt.Sprintf("%s/relationships/%s", p.Owner, p.Relationship)
}

// IntegrityProcessor is the principal processor described in §4.C: it
// maintains the reverse index (_rev) mapping every related record to the
// set of relationship slots pointing at it, enforces bidirectional
// relationship consistency by mirroring ops onto declared inverses, and
// cascades removeRecord to dependent: 'remove' relationships. The
// reverse index is private to this type, never exposed (§9).
type IntegrityProcessor struct {
	mu sync.Mutex
	// rev[relatedType][relatedID][path] = true
	rev      map[string]map[string]map[string]bool
	schema   *model.Schema
	removing map[string]bool
	log      *dsynclog.Logger
}

// NewIntegrityProcessor builds an IntegrityProcessor bound to schema.
func NewIntegrityProcessor(schema *model.Schema, log *dsynclog.Logger) *IntegrityProcessor {
	return &IntegrityProcessor{
		rev:      make(map[string]map[string]map[string]bool),
		schema:   schema,
		removing: make(map[string]bool),
		log:      log,
	}
}

// Reset clears the reverse index; Cache.Reset re-seeds it by replaying
// every record as an addRecord through After.
func (p *IntegrityProcessor) Reset(c *Cache) {
	p.mu.Lock()
	p.rev = make(map[string]map[string]map[string]bool)
	p.removing = make(map[string]bool)
	p.mu.Unlock()
}

func (p *IntegrityProcessor) setRev(related model.Identity, path string) {
	byID, ok := p.rev[related.Type]
	if !ok {
		byID = make(map[string]map[string]bool)
		p.rev[related.Type] = byID
	}
	paths, ok := byID[related.ID]
	if !ok {
		paths = make(map[string]bool)
		byID[related.ID] = paths
	}
	paths[path] = true
}

func (p *IntegrityProcessor) clearRev(related model.Identity, path string) {
	byID, ok := p.rev[related.Type]
	if !ok {
		return
	}
	paths, ok := byID[related.ID]
	if !ok {
		return
	}
	delete(paths, path)
	if len(paths) == 0 {
		delete(byID, related.ID)
	}
	if len(byID) == 0 {
		delete(p.rev, related.Type)
	}
}

// ReversePaths returns every relationship slot path currently pointing at
// related, for testing invariant I1 (the reverse-index bijection).
func (p *IntegrityProcessor) ReversePaths(related model.Identity) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	byID, ok := p.rev[related.Type]
	if !ok {
		return nil
	}
	paths, ok := byID[related.ID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(paths))
	for path := range paths {
		out = append(out, path)
	}
	return out
}

// Before implements the processor protocol's pre-mutation hook. For
// replaceRecord it diffs the prior record's relationships against the
// incoming one and clears now-absent reverse-index entries before the
// primary mutation overwrites the record (§4.C: "for replaceRecord,
// first diff against prior X and clear removed entries"). For
// removeRecord the prior record is diffed against an empty one, so every
// reverse-index entry for a slot it owned is cleared before it is deleted.
func (p *IntegrityProcessor) Before(c *Cache, o op.Operation) ([]op.Operation, error) {
	switch o.Op {
	case op.ReplaceRecord, op.RemoveRecord:
		ident, next := o.Ident, &model.Record{}
		if o.Op == op.ReplaceRecord {
			ident, next = o.Record.Identity, o.Record
		}
		prior, ok := c.getRecordLocked(ident)
		if !ok {
			return nil, nil
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		for relName, v := range prior.Relationships {
			switch slot := v.(type) {
			case model.HasOne:
				if slot.IsNull() {
					continue
				}
				if !p.replaceRecordStillPoints(next, relName, slot.Identity) {
					p.clearRev(slot.Identity, revPath{Owner: prior.Identity, Relationship: relName}.String())
				}
			case model.HasMany:
				for _, related := range slot {
					if !p.replaceRecordHasManyStillContains(next, relName, related) {
						p.clearRev(related, revPath{Owner: prior.Identity, Relationship: relName}.String())
					}
				}
			}
		}
		return nil, nil

	case op.ReplaceHasOne:
		prior, ok := c.getRecordLocked(o.Ident)
		if !ok {
			return nil, nil
		}
		p.mu.Lock()
		old := prior.Relationships.HasOneAt(o.Relationship)
		if !old.IsNull() {
			p.clearRev(old.Identity, revPath{Owner: o.Ident, Relationship: o.Relationship}.String())
		}
		p.mu.Unlock()
		return p.mirrorReplaceHasOne(c, o, old)

	case op.ReplaceHasMany:
		prior, ok := c.getRecordLocked(o.Ident)
		if !ok {
			return nil, nil
		}
		old := prior.Relationships.HasManyAt(o.Relationship)
		p.mu.Lock()
		for _, related := range old {
			if !o.RelatedSet.Contains(related) {
				p.clearRev(related, revPath{Owner: o.Ident, Relationship: o.Relationship}.String())
			}
		}
		p.mu.Unlock()
		return p.mirrorReplaceHasMany(c, o, old)

	case op.RemoveFromHasMany:
		p.mu.Lock()
		p.clearRev(o.RelatedRecord, revPath{Owner: o.Ident, Relationship: o.Relationship}.String())
		p.mu.Unlock()
		return p.mirrorRemoveFromHasMany(c, o)
	}
	return nil, nil
}

func (p *IntegrityProcessor) replaceRecordStillPoints(newRecord *model.Record, relName string, related model.Identity) bool {
	if newRecord.Relationships == nil {
		return false
	}
	slot := newRecord.Relationships.HasOneAt(relName)
	return !slot.IsNull() && slot.Identity == related
}

func (p *IntegrityProcessor) replaceRecordHasManyStillContains(newRecord *model.Record, relName string, related model.Identity) bool {
	if newRecord.Relationships == nil {
		return false
	}
	return newRecord.Relationships.HasManyAt(relName).Contains(related)
}

// After implements the post-mutation hook: it registers new reverse-index
// entries for the record as it now stands, mirrors relationship changes
// onto declared inverses (invariant I2), cleans up back-pointers when a
// record is removed, and cascades dependent: 'remove' relationships.
func (p *IntegrityProcessor) After(c *Cache, o op.Operation) ([]op.Operation, error) {
	switch o.Op {
	case op.AddRecord, op.ReplaceRecord:
		r, ok := c.getRecordLocked(o.Record.Identity)
		if !ok {
			return nil, nil
		}
		p.mu.Lock()
		for relName, v := range r.Relationships {
			switch slot := v.(type) {
			case model.HasOne:
				if !slot.IsNull() {
					p.setRev(slot.Identity, revPath{Owner: r.Identity, Relationship: relName}.String())
				}
			case model.HasMany:
				for _, related := range slot {
					p.setRev(related, revPath{Owner: r.Identity, Relationship: relName}.String())
				}
			}
		}
		p.mu.Unlock()
		return nil, nil

	case op.AddToHasMany:
		p.mu.Lock()
		p.setRev(o.RelatedRecord, revPath{Owner: o.Ident, Relationship: o.Relationship}.String())
		p.mu.Unlock()
		return p.mirrorAddToHasMany(c, o)

	case op.RemoveRecord:
		return p.handleRemoveRecord(c, o)
	}
	return nil, nil
}

// Finally drops the removed record's own reverse-index bucket once every
// After-emitted cleanup op has landed, per §4.C.
func (p *IntegrityProcessor) Finally(c *Cache, o op.Operation) ([]op.Operation, error) {
	if o.Op == op.RemoveRecord {
		p.mu.Lock()
		delete(p.rev[o.Ident.Type], o.Ident.ID)
		if len(p.rev[o.Ident.Type]) == 0 {
			delete(p.rev, o.Ident.Type)
		}
		delete(p.removing, o.Ident.String())
		p.mu.Unlock()
	}
	return nil, nil
}

// handleRemoveRecord walks the being-removed record's reverse index to
// clean up every back-pointer (invariant I3), and cascades to
// dependent: 'remove' relationships, guarding against cycles with a
// per-transform "currently removing" set (§9).
func (p *IntegrityProcessor) handleRemoveRecord(c *Cache, o op.Operation) ([]op.Operation, error) {
	idStr := o.Ident.String()

	p.mu.Lock()
	if p.removing[idStr] {
		p.mu.Unlock()
		return nil, nil
	}
	p.removing[idStr] = true
	paths := p.rev[o.Ident.Type][o.Ident.ID]
	pathList := make([]string, 0, len(paths))
	for path := range paths {
		pathList = append(pathList, path)
	}
	p.mu.Unlock()

	var followUps []op.Operation
	for _, path := range pathList {
		owner, relName, ok := parseRevPath(path)
		if !ok {
			continue
		}
		ownerRecord, ok := c.getRecordLocked(owner)
		if !ok {
			continue
		}
		switch slot := ownerRecord.Relationships[relName].(type) {
		case model.HasOne:
			if !slot.IsNull() && slot.Identity == o.Ident {
				followUps = append(followUps, op.NewReplaceHasOne(owner, relName, model.Identity{}, true))
			}
		case model.HasMany:
			if slot.Contains(o.Ident) {
				followUps = append(followUps, op.NewRemoveFromHasMany(owner, relName, o.Ident))
			}
		}
	}

	removedRecord, _ := c.getRecordLocked(o.Ident)
	if removedRecord != nil && removedRecord.Relationships != nil {
		modelSchema, hasSchema := p.schema.Models[o.Ident.Type]
		if hasSchema {
			for relName, v := range removedRecord.Relationships {
				descriptor, ok := modelSchema.Relationships[relName]
				if !ok || descriptor.Dependent != model.DependentRemove {
					continue
				}
				switch slot := v.(type) {
				case model.HasOne:
					if !slot.IsNull() {
						followUps = append(followUps, op.NewRemoveRecord(slot.Identity))
					}
				case model.HasMany:
					for _, related := range slot {
						followUps = append(followUps, op.NewRemoveRecord(related))
					}
				}
			}
		}
	}

	return followUps, nil
}

func parseRevPath(path string) (model.Identity, string, bool) {
	// path is "<type>:<id>/relationships/<name>"
	var ownerStr, relName string
	const marker = "/relationships/"
	idx := indexOf(path, marker)
	if idx < 0 {
		return model.Identity{}, "", false
	}
	ownerStr = path[:idx]
	relName = path[idx+len(marker):]
	colon := indexOf(ownerStr, ":")
	if colon < 0 {
		return model.Identity{}, "", false
	}
	return model.Identity{Type: ownerStr[:colon], ID: ownerStr[colon+1:]}, relName, true
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// mirrorAddToHasMany propagates an addToHasMany op onto the declared
// inverse of the relationship, so Y.inverse(R) contains X (invariant I2).
func (p *IntegrityProcessor) mirrorAddToHasMany(c *Cache, o op.Operation) ([]op.Operation, error) {
	descriptor, ok := p.inverseOf(o.Ident.Type, o.Relationship)
	if !ok || descriptor.Inverse == "" {
		return nil, nil
	}
	if p.inverseAlreadyConsistent(c, o.RelatedRecord, descriptor.Inverse, descriptor, o.Ident) {
		return nil, nil
	}
	return []op.Operation{p.inverseMutation(descriptor, o.RelatedRecord, o.Ident)}, nil
}

func (p *IntegrityProcessor) mirrorRemoveFromHasMany(c *Cache, o op.Operation) ([]op.Operation, error) {
	descriptor, ok := p.inverseOf(o.Ident.Type, o.Relationship)
	if !ok || descriptor.Inverse == "" {
		return nil, nil
	}
	related, ok := c.getRecordLocked(o.RelatedRecord)
	if !ok {
		return nil, nil
	}
	inverseDescriptor, ok := p.schema.Models[o.RelatedRecord.Type].Relationships[descriptor.Inverse]
	if !ok {
		return nil, nil
	}
	switch inverseDescriptor.Kind {
	case model.HasOneKind:
		slot := related.Relationships.HasOneAt(descriptor.Inverse)
		if !slot.IsNull() && slot.Identity == o.Ident {
			return []op.Operation{op.NewReplaceHasOne(o.RelatedRecord, descriptor.Inverse, model.Identity{}, true)}, nil
		}
	case model.HasManyKind:
		if related.Relationships.HasManyAt(descriptor.Inverse).Contains(o.Ident) {
			return []op.Operation{op.NewRemoveFromHasMany(o.RelatedRecord, descriptor.Inverse, o.Ident)}, nil
		}
	}
	return nil, nil
}

func (p *IntegrityProcessor) mirrorReplaceHasOne(c *Cache, o op.Operation, old model.HasOne) ([]op.Operation, error) {
	descriptor, ok := p.inverseOf(o.Ident.Type, o.Relationship)
	if !ok || descriptor.Inverse == "" {
		return nil, nil
	}
	var follow []op.Operation
	if !old.IsNull() && (o.RelatedIsNull || old.Identity != o.RelatedRecord) {
		follow = append(follow, p.detachInverse(c, descriptor, old.Identity, o.Ident)...)
	}
	if !o.RelatedIsNull && !p.inverseAlreadyConsistent(c, o.RelatedRecord, descriptor.Inverse, descriptor, o.Ident) {
		follow = append(follow, p.inverseMutation(descriptor, o.RelatedRecord, o.Ident))
	}
	return follow, nil
}

func (p *IntegrityProcessor) mirrorReplaceHasMany(c *Cache, o op.Operation, old model.HasMany) ([]op.Operation, error) {
	descriptor, ok := p.inverseOf(o.Ident.Type, o.Relationship)
	if !ok || descriptor.Inverse == "" {
		return nil, nil
	}
	var follow []op.Operation
	for _, related := range old {
		if !o.RelatedSet.Contains(related) {
			follow = append(follow, p.detachInverse(c, descriptor, related, o.Ident)...)
		}
	}
	for _, related := range o.RelatedSet {
		if !old.Contains(related) && !p.inverseAlreadyConsistent(c, related, descriptor.Inverse, descriptor, o.Ident) {
			follow = append(follow, p.inverseMutation(descriptor, related, o.Ident))
		}
	}
	return follow, nil
}

func (p *IntegrityProcessor) detachInverse(c *Cache, descriptor model.RelationshipDescriptor, related model.Identity, owner model.Identity) []op.Operation {
	r, ok := c.getRecordLocked(related)
	if !ok {
		return nil
	}
	inverseDescriptor, ok := p.schema.Models[related.Type].Relationships[descriptor.Inverse]
	if !ok {
		return nil
	}
	switch inverseDescriptor.Kind {
	case model.HasOneKind:
		slot := r.Relationships.HasOneAt(descriptor.Inverse)
		if !slot.IsNull() && slot.Identity == owner {
			return []op.Operation{op.NewReplaceHasOne(related, descriptor.Inverse, model.Identity{}, true)}
		}
	case model.HasManyKind:
		if r.Relationships.HasManyAt(descriptor.Inverse).Contains(owner) {
			return []op.Operation{op.NewRemoveFromHasMany(related, descriptor.Inverse, owner)}
		}
	}
	return nil
}

// inverseAlreadyConsistent reports whether related's inverse slot already
// points back at owner, so mirroring the forward op would be a no-op —
// this is what keeps inverse propagation from recursing forever.
func (p *IntegrityProcessor) inverseAlreadyConsistent(c *Cache, related model.Identity, inverseName string, descriptor model.RelationshipDescriptor, owner model.Identity) bool {
	r, ok := c.getRecordLocked(related)
	if !ok {
		return false
	}
	inverseDescriptor, ok := p.schema.Models[related.Type].Relationships[inverseName]
	if !ok {
		return false
	}
	switch inverseDescriptor.Kind {
	case model.HasOneKind:
		slot := r.Relationships.HasOneAt(inverseName)
		return !slot.IsNull() && slot.Identity == owner
	case model.HasManyKind:
		return r.Relationships.HasManyAt(inverseName).Contains(owner)
	}
	return false
}

func (p *IntegrityProcessor) inverseMutation(descriptor model.RelationshipDescriptor, related model.Identity, owner model.Identity) op.Operation {
	inverseDescriptor := p.schema.Models[related.Type].Relationships[descriptor.Inverse]
	switch inverseDescriptor.Kind {
	case model.HasOneKind:
		return op.NewReplaceHasOne(related, descriptor.Inverse, owner, false)
	default:
		return op.NewAddToHasMany(related, descriptor.Inverse, owner)
	}
}

func (p *IntegrityProcessor) inverseOf(modelType, relationship string) (model.RelationshipDescriptor, bool) {
	ms, ok := p.schema.Models[modelType]
	if !ok {
		return model.RelationshipDescriptor{}, false
	}
	rel, ok := ms.Relationships[relationship]
	return rel, ok
}
