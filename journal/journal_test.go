package journal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

// TestEntry_Structure mirrors the teacher's struct-level GORM model
// tests (db/postgres_test.go): no live database needed to assert field
// shape and JSON round-tripping.
func TestEntry_Structure(t *testing.T) {
	t.Run("complete entry", func(t *testing.T) {
		now := time.Now()
		entry := Entry{
			Model: gorm.Model{
				ID:        1,
				CreatedAt: now,
				UpdatedAt: now,
			},
			TransformID: "tf-1",
			SourceName:  "store",
			Operations:  []byte(`[{"op":"addRecord"}]`),
		}

		assert.Equal(t, uint(1), entry.ID)
		assert.Equal(t, "tf-1", entry.TransformID)
		assert.Equal(t, "store", entry.SourceName)
		assert.NotEmpty(t, entry.Operations)
	})

	t.Run("empty entry", func(t *testing.T) {
		entry := Entry{}
		assert.Empty(t, entry.TransformID)
		assert.Empty(t, entry.SourceName)
		assert.Nil(t, entry.Operations)
	})
}

func TestEntry_JSONSerialization(t *testing.T) {
	entry := Entry{
		TransformID: "tf-json",
		SourceName:  "store",
		Operations:  []byte(`[{"op":"removeRecord"}]`),
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tf-json")

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "tf-json", decoded.TransformID)
}

// TestJournal_RecordMarshalsOperations repeats the json.Marshal call that
// record() makes on a Transform's operations (the part that doesn't
// require a live *gorm.DB) and confirms the encoded operations decode
// back into []op.Operation without error.
func TestJournal_RecordMarshalsOperations(t *testing.T) {
	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	record.Attributes = map[string]interface{}{"name": "Pluto"}
	transform := op.New(op.NewAddRecord(record))

	payload, err := json.Marshal(transform.Operations)
	require.NoError(t, err)

	var decoded []op.Operation
	require.NoError(t, json.Unmarshal(payload, &decoded))
}
