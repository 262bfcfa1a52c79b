package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsync.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSourceTransformAddRecordPersists(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	record.Attributes = map[string]interface{}{"name": "Pluto"}

	result, err := src.DoTransform(context.Background(), op.New(op.NewAddRecord(record)))
	require.NoError(t, err)
	require.Len(t, result, 1)

	ok, err := src.VerifyContains(id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSourceRemoveRecordDeletes(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	_, err := src.DoTransform(context.Background(), op.New(op.NewAddRecord(record)))
	require.NoError(t, err)

	_, err = src.DoTransform(context.Background(), op.New(op.NewRemoveRecord(id)))
	require.NoError(t, err)

	ok, err := src.VerifyDoesNotContain(id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSourceFetchReadsPersistedRecord(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	record.Attributes = map[string]interface{}{"name": "Pluto"}
	_, err := src.DoTransform(context.Background(), op.New(op.NewAddRecord(record)))
	require.NoError(t, err)

	result, err := src.DoFetch(context.Background(), Query{Ident: id})
	require.NoError(t, err)
	stored, ok := result.(storedRecord)
	require.True(t, ok)
	require.Equal(t, "Pluto", stored.Attributes["name"])
}

func TestSourceFetchMissingRecordReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	_, err := src.DoFetch(context.Background(), Query{Ident: model.Identity{Type: "planet", ID: "missing"}})
	require.Error(t, err)
}

func TestSourceReplaceAttributeMutatesStoredRecord(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	record.Attributes = map[string]interface{}{"name": "Pluto"}
	_, err := src.DoTransform(context.Background(), op.New(op.NewAddRecord(record)))
	require.NoError(t, err)

	_, err = src.DoTransform(context.Background(), op.New(op.NewReplaceAttribute(id, "name", "Planet X")))
	require.NoError(t, err)

	result, err := src.DoFetch(context.Background(), Query{Ident: id})
	require.NoError(t, err)
	stored := result.(storedRecord)
	require.Equal(t, "Planet X", stored.Attributes["name"])
}

func TestSourceUpdateDelegatesToTransform(t *testing.T) {
	db := openTestDB(t)
	src := New(db, nil)

	id := model.Identity{Type: "planet", ID: "pluto"}
	record := model.NewRecord(id)
	_, err := src.DoUpdate(context.Background(), op.New(op.NewAddRecord(record)))
	require.NoError(t, err)

	ok, err := src.VerifyContains(id)
	require.NoError(t, err)
	require.True(t, ok)
}
