// Package model defines the record, schema and key-mapping types shared
// by every cache, source and strategy in dsync. Nothing in this package
// performs I/O; it is pure data and metadata, mirroring the plain-struct
// shape of the repository pattern's own value types.
package model

import "fmt"

// Identity is a (type, id) pair. Its string form "type:id" is the
// canonical key used for relationship pointers and reverse-index paths.
type Identity struct {
	Type string
	ID   string
}

// String renders the canonical "type:id" form.
func (i Identity) String() string {
	return fmt.Sprintf("%s:%s", i.Type, i.ID)
}

// IsZero reports whether the identity has no type/id set.
func (i Identity) IsZero() bool { return i.Type == "" && i.ID == "" }

// HasOne is the value of a hasOne relationship slot: either empty
// (IsNull true, meaning null) or a single related identity.
type HasOne struct {
	Identity
	set bool
}

// NewHasOne builds a populated HasOne slot.
func NewHasOne(id Identity) HasOne { return HasOne{Identity: id, set: true} }

// IsNull reports whether the slot holds no related record.
func (h HasOne) IsNull() bool { return !h.set }

// HasMany is the value of a hasMany relationship slot: a set of related
// identities keyed by their "type:id" string, order irrelevant per spec.
type HasMany map[string]Identity

// NewHasMany builds a HasMany set from a list of identities.
func NewHasMany(ids ...Identity) HasMany {
	h := make(HasMany, len(ids))
	for _, id := range ids {
		h[id.String()] = id
	}
	return h
}

// Contains reports whether id is a member of the set.
func (h HasMany) Contains(id Identity) bool {
	_, ok := h[id.String()]
	return ok
}

// Add inserts id into the set, returning true if it was not already
// present.
func (h HasMany) Add(id Identity) bool {
	if h.Contains(id) {
		return false
	}
	h[id.String()] = id
	return true
}

// Remove deletes id from the set, returning true if it was present.
func (h HasMany) Remove(id Identity) bool {
	if !h.Contains(id) {
		return false
	}
	delete(h, id.String())
	return true
}

// Clone returns a shallow copy of the set.
func (h HasMany) Clone() HasMany {
	out := make(HasMany, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Relationships holds a record's relationship slots by name. A slot is
// either a HasOne or a HasMany; callers type-switch on the stored value.
type Relationships map[string]interface{}

// HasOneAt returns the HasOne slot at name, or a null slot if absent or
// of the wrong kind.
func (r Relationships) HasOneAt(name string) HasOne {
	if v, ok := r[name]; ok {
		if h, ok := v.(HasOne); ok {
			return h
		}
	}
	return HasOne{}
}

// HasManyAt returns the HasMany slot at name, or an empty set if absent
// or of the wrong kind.
func (r Relationships) HasManyAt(name string) HasMany {
	if v, ok := r[name]; ok {
		if h, ok := v.(HasMany); ok {
			return h
		}
	}
	return HasMany{}
}

// Record is the canonical unit stored in the cache: an identity plus
// optional keys (remote key name to value), attributes and relationships.
type Record struct {
	Identity
	Keys          map[string]string
	Attributes    map[string]interface{}
	Relationships Relationships
}

// NewRecord builds an empty Record for the given identity.
func NewRecord(id Identity) *Record {
	return &Record{Identity: id}
}

// Clone returns a deep-enough copy of r suitable for diffing against in
// replaceRecord handling: top-level maps are copied, HasMany sets are
// cloned, nested attribute values are shared by reference (attributes are
// treated as opaque by the cache).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Identity: r.Identity}
	if r.Keys != nil {
		out.Keys = make(map[string]string, len(r.Keys))
		for k, v := range r.Keys {
			out.Keys[k] = v
		}
	}
	if r.Attributes != nil {
		out.Attributes = make(map[string]interface{}, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	if r.Relationships != nil {
		out.Relationships = make(Relationships, len(r.Relationships))
		for k, v := range r.Relationships {
			switch t := v.(type) {
			case HasMany:
				out.Relationships[k] = t.Clone()
			default:
				out.Relationships[k] = v
			}
		}
	}
	return out
}
