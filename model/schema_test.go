package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/model"
)

func planetMoonSchema() *model.Schema {
	s := model.NewSchema()
	s.AddModel("planet", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"moons": {Kind: model.HasManyKind, Model: "moon", Inverse: "planet"},
		},
	})
	s.AddModel("moon", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"planet": {Kind: model.HasOneKind, Model: "planet", Inverse: "moons"},
		},
	})
	return s
}

func TestSchemaValidateAcceptsConsistentInverse(t *testing.T) {
	require.NoError(t, planetMoonSchema().Validate())
}

func TestSchemaValidateRejectsMissingInverseModel(t *testing.T) {
	s := model.NewSchema()
	s.AddModel("planet", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"moons": {Kind: model.HasManyKind, Model: "moon", Inverse: "planet"},
		},
	})
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, dsyncerr.Is(err, dsyncerr.KindSchemaError))
}

func TestSchemaValidateRejectsAsymmetricInverse(t *testing.T) {
	s := model.NewSchema()
	s.AddModel("planet", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"moons": {Kind: model.HasManyKind, Model: "moon", Inverse: "planet"},
		},
	})
	s.AddModel("moon", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"planet": {Kind: model.HasOneKind, Model: "planet", Inverse: "wrongName"},
		},
	})
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, dsyncerr.Is(err, dsyncerr.KindSchemaError))
}

func TestSchemaValidateRejectsMismatchedTarget(t *testing.T) {
	s := model.NewSchema()
	s.AddModel("planet", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"moons": {Kind: model.HasManyKind, Model: "moon", Inverse: "planet"},
		},
	})
	s.AddModel("moon", model.ModelSchema{
		Relationships: map[string]model.RelationshipDescriptor{
			"planet": {Kind: model.HasOneKind, Model: "star", Inverse: "moons"},
		},
	})
	s.AddModel("star", model.ModelSchema{})
	err := s.Validate()
	require.Error(t, err)
}

func TestRelationshipDescriptorForUnknownModel(t *testing.T) {
	s := model.NewSchema()
	_, err := s.RelationshipDescriptorFor("planet", "moons")
	require.Error(t, err)
	assert.True(t, dsyncerr.Is(err, dsyncerr.KindSchemaError))
}

func TestRelationshipDescriptorForUnknownRelationship(t *testing.T) {
	s := planetMoonSchema()
	_, err := s.RelationshipDescriptorFor("planet", "rings")
	require.Error(t, err)
	assert.True(t, dsyncerr.Is(err, dsyncerr.KindRelationshipNotFound))
}

func TestRelationshipDescriptorForFound(t *testing.T) {
	s := planetMoonSchema()
	rel, err := s.RelationshipDescriptorFor("planet", "moons")
	require.NoError(t, err)
	assert.Equal(t, model.HasManyKind, rel.Kind)
	assert.Equal(t, "moon", rel.Model)
}
