package jsonapi_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/jsonapi"
)

func TestRelationshipDataMarshalHasOne(t *testing.T) {
	data := jsonapi.NewHasOneData(&jsonapi.ResourceIdentifier{Type: "planets", ID: "42"})
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"planets","id":"42"}`, string(raw))
}

func TestRelationshipDataMarshalNullHasOne(t *testing.T) {
	data := jsonapi.NewHasOneData(nil)
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestRelationshipDataMarshalHasMany(t *testing.T) {
	data := jsonapi.NewHasManyData([]jsonapi.ResourceIdentifier{{Type: "moons", ID: "1"}, {Type: "moons", ID: "2"}})
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"moons","id":"1"},{"type":"moons","id":"2"}]`, string(raw))
}

func TestRelationshipDataUnmarshalRoundTrip(t *testing.T) {
	var hasOne jsonapi.RelationshipData
	require.NoError(t, json.Unmarshal([]byte(`{"type":"planets","id":"42"}`), &hasOne))
	raw, err := json.Marshal(hasOne)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"planets","id":"42"}`, string(raw))

	var null jsonapi.RelationshipData
	require.NoError(t, json.Unmarshal([]byte(`null`), &null))
	raw, err = json.Marshal(null)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	var many jsonapi.RelationshipData
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"moons","id":"1"}]`), &many))
	raw, err = json.Marshal(many)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"moons","id":"1"}]`, string(raw))
}

func TestDocumentMarshalOmitsNilData(t *testing.T) {
	doc := jsonapi.Document{}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestErrorDocumentUnmarshal(t *testing.T) {
	raw := []byte(`{"errors":[{"status":"422","title":"Unprocessable","detail":"Pluto isn't really a planet!"}]}`)
	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "Pluto isn't really a planet!", doc.Errors[0].Detail)
}
