// Package op defines the tagged operation variants and the Transform
// batch that carries them, per spec §3/§4.D/§6. Each Operation carries
// the minimum payload its op kind needs; Transform gives a batch of
// operations a stable, content-independent id for cross-source dedup.
package op

import "dsync.evalgo.org/model"

// Kind tags an Operation's variant.
type Kind string

const (
	AddRecord         Kind = "addRecord"
	ReplaceRecord     Kind = "replaceRecord"
	RemoveRecord      Kind = "removeRecord"
	ReplaceKey        Kind = "replaceKey"
	ReplaceAttribute  Kind = "replaceAttribute"
	AddToHasMany      Kind = "addToHasMany"
	RemoveFromHasMany Kind = "removeFromHasMany"
	ReplaceHasMany    Kind = "replaceHasMany"
	ReplaceHasOne     Kind = "replaceHasOne"
)

// Operation is a single tagged mutation descriptor. Only the fields
// relevant to Op are populated; constructors below enforce that shape so
// callers never hand-assemble a malformed Operation.
type Operation struct {
	Op Kind

	Record *model.Record  // addRecord, replaceRecord
	Ident  model.Identity // removeRecord, replaceKey, replaceAttribute, relationship ops: owner record

	Key   string      // replaceKey
	Value interface{} // replaceKey (remote value), replaceAttribute

	Attribute string // replaceAttribute

	Relationship  string        // relationship ops
	RelatedRecord model.Identity // addToHasMany, removeFromHasMany, replaceHasOne (non-null)
	RelatedIsNull bool          // replaceHasOne(..., nil)
	RelatedSet    model.HasMany // replaceHasMany
}

// NewAddRecord builds an addRecord operation.
func NewAddRecord(r *model.Record) Operation {
	return Operation{Op: AddRecord, Record: r, Ident: r.Identity}
}

// NewReplaceRecord builds a replaceRecord operation.
func NewReplaceRecord(r *model.Record) Operation {
	return Operation{Op: ReplaceRecord, Record: r, Ident: r.Identity}
}

// NewRemoveRecord builds a removeRecord operation.
func NewRemoveRecord(id model.Identity) Operation {
	return Operation{Op: RemoveRecord, Ident: id}
}

// NewReplaceKey builds a replaceKey operation.
func NewReplaceKey(id model.Identity, key string, value string) Operation {
	return Operation{Op: ReplaceKey, Ident: id, Key: key, Value: value}
}

// NewReplaceAttribute builds a replaceAttribute operation.
func NewReplaceAttribute(id model.Identity, attribute string, value interface{}) Operation {
	return Operation{Op: ReplaceAttribute, Ident: id, Attribute: attribute, Value: value}
}

// NewAddToHasMany builds an addToHasMany operation.
func NewAddToHasMany(id model.Identity, relationship string, related model.Identity) Operation {
	return Operation{Op: AddToHasMany, Ident: id, Relationship: relationship, RelatedRecord: related}
}

// NewRemoveFromHasMany builds a removeFromHasMany operation.
func NewRemoveFromHasMany(id model.Identity, relationship string, related model.Identity) Operation {
	return Operation{Op: RemoveFromHasMany, Ident: id, Relationship: relationship, RelatedRecord: related}
}

// NewReplaceHasMany builds a replaceHasMany operation.
func NewReplaceHasMany(id model.Identity, relationship string, related model.HasMany) Operation {
	return Operation{Op: ReplaceHasMany, Ident: id, Relationship: relationship, RelatedSet: related}
}

// NewReplaceHasOne builds a replaceHasOne operation. Pass a zero
// model.Identity with isNull=true to clear the slot.
func NewReplaceHasOne(id model.Identity, relationship string, related model.Identity, isNull bool) Operation {
	return Operation{Op: ReplaceHasOne, Ident: id, Relationship: relationship, RelatedRecord: related, RelatedIsNull: isNull}
}
