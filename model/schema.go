package model

import "dsync.evalgo.org/dsyncerr"

// RelationshipKind distinguishes hasOne from hasMany relationship slots.
type RelationshipKind string

const (
	HasOneKind  RelationshipKind = "hasOne"
	HasManyKind RelationshipKind = "hasMany"
)

// DependentRule controls whether removing a record cascades to its
// related records. Only "remove" is defined; a zero value means no
// cascade.
type DependentRule string

// DependentRemove marks a relationship whose related records must be
// removed when the owning record is removed (§4.C "Dependency semantics").
const DependentRemove DependentRule = "remove"

// RelationshipDescriptor describes one relationship slot on a model.
type RelationshipDescriptor struct {
	Kind      RelationshipKind
	Model     string
	Inverse   string
	ActsAsSet bool
	Dependent DependentRule
}

// ModelSchema describes one model's attributes and relationships.
type ModelSchema struct {
	Attributes    map[string]struct{}
	Relationships map[string]RelationshipDescriptor
}

// Schema is the full set of model schemas keyed by model type. It is
// immutable after Validate succeeds; sources and the cache hold a shared
// reference to one Schema.
type Schema struct {
	Models map[string]ModelSchema
}

// NewSchema builds an empty Schema ready to have models added via
// AddModel, then validated.
func NewSchema() *Schema {
	return &Schema{Models: make(map[string]ModelSchema)}
}

// AddModel registers a model's schema, overwriting any prior definition
// for the same type.
func (s *Schema) AddModel(modelType string, schema ModelSchema) {
	s.Models[modelType] = schema
}

// RelationshipDescriptorFor returns the descriptor for modelType.relationship,
// or a dsyncerr RelationshipNotFound error.
func (s *Schema) RelationshipDescriptorFor(modelType, relationship string) (RelationshipDescriptor, error) {
	model, ok := s.Models[modelType]
	if !ok {
		return RelationshipDescriptor{}, dsyncerr.SchemaError("unknown model: %s", modelType)
	}
	rel, ok := model.Relationships[relationship]
	if !ok {
		return RelationshipDescriptor{}, dsyncerr.RelationshipNotFound(modelType, relationship)
	}
	return rel, nil
}

// Validate checks the invariant from spec §3: if relationship R on model
// M declares inverse R' on model M', then M' must exist, declare R' with
// inverse R, and the two cardinalities (hasOne/hasMany) must be
// consistent with each other in the sense that both ends are themselves
// valid relationship kinds (hasOne or hasMany); asymmetric kinds such as
// hasOne<->hasMany are permitted (e.g. one planet hasMany moons, each
// moon hasOne planet) but the inverse must point back symmetrically.
func (s *Schema) Validate() error {
	for modelType, schema := range s.Models {
		for relName, rel := range schema.Relationships {
			if rel.Inverse == "" {
				continue
			}
			otherSchema, ok := s.Models[rel.Model]
			if !ok {
				return dsyncerr.SchemaError("%s.%s: inverse model %q not declared", modelType, relName, rel.Model)
			}
			inverseRel, ok := otherSchema.Relationships[rel.Inverse]
			if !ok {
				return dsyncerr.SchemaError("%s.%s: inverse %s.%s not declared", modelType, relName, rel.Model, rel.Inverse)
			}
			if inverseRel.Inverse != relName {
				return dsyncerr.SchemaError("%s.%s: inverse %s.%s does not point back (has inverse %q)",
					modelType, relName, rel.Model, rel.Inverse, inverseRel.Inverse)
			}
			if inverseRel.Model != modelType {
				return dsyncerr.SchemaError("%s.%s: inverse %s.%s targets model %q, expected %q",
					modelType, relName, rel.Model, rel.Inverse, inverseRel.Model, modelType)
			}
			for _, kind := range []RelationshipKind{rel.Kind, inverseRel.Kind} {
				if kind != HasOneKind && kind != HasManyKind {
					return dsyncerr.SchemaError("%s.%s: inverse pair has invalid relationship kind %q", modelType, relName, kind)
				}
			}
		}
	}
	return nil
}
