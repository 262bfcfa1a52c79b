package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/model"
)

func TestIdentityString(t *testing.T) {
	id := model.Identity{Type: "planet", ID: "earth"}
	assert.Equal(t, "planet:earth", id.String())
}

func TestIdentityIsZero(t *testing.T) {
	assert.True(t, model.Identity{}.IsZero())
	assert.False(t, model.Identity{Type: "planet"}.IsZero())
}

func TestHasOneNullByDefault(t *testing.T) {
	var h model.HasOne
	assert.True(t, h.IsNull())
}

func TestNewHasOneIsNotNull(t *testing.T) {
	h := model.NewHasOne(model.Identity{Type: "planet", ID: "earth"})
	assert.False(t, h.IsNull())
	assert.Equal(t, "earth", h.ID)
}

func TestHasManyAddRemoveContains(t *testing.T) {
	h := model.NewHasMany()
	earth := model.Identity{Type: "planet", ID: "earth"}

	require.True(t, h.Add(earth))
	assert.True(t, h.Contains(earth))

	require.False(t, h.Add(earth), "re-adding an existing member reports false")

	require.True(t, h.Remove(earth))
	assert.False(t, h.Contains(earth))
	require.False(t, h.Remove(earth), "removing an absent member reports false")
}

func TestHasManyCloneIsIndependent(t *testing.T) {
	earth := model.Identity{Type: "planet", ID: "earth"}
	h := model.NewHasMany(earth)
	clone := h.Clone()

	clone.Add(model.Identity{Type: "planet", ID: "mars"})
	assert.False(t, h.Contains(model.Identity{Type: "planet", ID: "mars"}))
	assert.True(t, clone.Contains(model.Identity{Type: "planet", ID: "mars"}))
}

func TestRelationshipsAccessorsReturnZeroValueForWrongKind(t *testing.T) {
	rel := model.Relationships{
		"moons": model.NewHasMany(model.Identity{Type: "moon", ID: "titan"}),
		"next":  model.NewHasOne(model.Identity{Type: "planet", ID: "jupiter"}),
	}

	// Asking for a hasMany slot by a hasOne accessor and vice versa
	// must fail closed, not panic on a bad type assertion.
	assert.True(t, rel.HasOneAt("moons").IsNull())
	assert.Empty(t, rel.HasManyAt("next"))
	assert.Empty(t, rel.HasManyAt("missing"))
	assert.True(t, rel.HasOneAt("missing").IsNull())
}

func TestRecordCloneDeepEnoughForDiffing(t *testing.T) {
	id := model.Identity{Type: "planet", ID: "earth"}
	rec := model.NewRecord(id)
	rec.Keys = map[string]string{"remoteId": "42"}
	rec.Attributes = map[string]interface{}{"name": "Earth"}
	rec.Relationships = model.Relationships{
		"moons": model.NewHasMany(model.Identity{Type: "moon", ID: "luna"}),
	}

	clone := rec.Clone()
	clone.Keys["remoteId"] = "99"
	clone.Attributes["name"] = "Terra"
	clone.Relationships.HasManyAt("moons").Add(model.Identity{Type: "moon", ID: "phobos"})

	assert.Equal(t, "42", rec.Keys["remoteId"], "clone must not alias the original Keys map")
	assert.Equal(t, "Earth", rec.Attributes["name"], "clone must not alias the original Attributes map")
	assert.False(t, rec.Relationships.HasManyAt("moons").Contains(model.Identity{Type: "moon", ID: "phobos"}),
		"clone must not alias the original HasMany set")
}

func TestRecordCloneNilReceiver(t *testing.T) {
	var rec *model.Record
	assert.Nil(t, rec.Clone())
}
