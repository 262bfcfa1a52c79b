package op

import "github.com/google/uuid"

// Transform is an ordered, id-tagged batch of operations (spec §3). The
// id is a stable unique identifier used for cross-source de-duplication
// (§4.D, invariant I4): applying the same Transform twice must be a
// no-op the second time.
type Transform struct {
	ID         string
	Operations []Operation
}

// New builds a Transform with a freshly generated id.
func New(ops ...Operation) Transform {
	return Transform{ID: uuid.NewString(), Operations: ops}
}

// WithID builds a Transform carrying a caller-supplied id, used when a
// transform must be re-constructed with the same id it originally had
// (e.g. a source replaying a transform it already assigned an id to).
func WithID(id string, ops ...Operation) Transform {
	return Transform{ID: id, Operations: ops}
}

// Inverse returns the inverse operation for o, if one exists per the
// round-trip law (R2): addRecord<->removeRecord, addToHasMany<->
// removeFromHasMany, replaceHasOne(X,R,nil)<->replaceHasOne(X,R,prior).
// prior is the pre-operation state needed to build some inverses
// (removeRecord, replaceRecord, replaceAttribute, replaceHasOne,
// replaceHasMany); it is
// ignored for operations whose inverse needs no prior state.
func Inverse(o Operation, prior *Operation) (Operation, bool) {
	switch o.Op {
	case AddRecord:
		return NewRemoveRecord(o.Ident), true
	case RemoveRecord:
		if prior != nil && prior.Record != nil {
			return NewAddRecord(prior.Record), true
		}
		return Operation{}, false
	case AddToHasMany:
		return NewRemoveFromHasMany(o.Ident, o.Relationship, o.RelatedRecord), true
	case RemoveFromHasMany:
		return NewAddToHasMany(o.Ident, o.Relationship, o.RelatedRecord), true
	case ReplaceHasOne:
		if prior == nil {
			return Operation{}, false
		}
		return NewReplaceHasOne(o.Ident, o.Relationship, prior.RelatedRecord, prior.RelatedIsNull), true
	case ReplaceHasMany:
		if prior == nil {
			return Operation{}, false
		}
		return NewReplaceHasMany(o.Ident, o.Relationship, prior.RelatedSet), true
	case ReplaceAttribute:
		if prior == nil {
			return Operation{}, false
		}
		return NewReplaceAttribute(o.Ident, o.Attribute, prior.Value), true
	case ReplaceRecord:
		if prior != nil && prior.Record != nil {
			return NewReplaceRecord(prior.Record), true
		}
		return Operation{}, false
	default:
		return Operation{}, false
	}
}
