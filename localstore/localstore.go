// Package localstore implements the LocalStorage reference Source (spec
// §1, §6): a bbolt-backed persistence adapter that stores each record
// under a stable key derived from its identity. It is grounded on the
// teacher's db/bolt/bolt.go wrapper (Open/CreateBucket/PutJSON/GetJSON/
// Delete/ForEach), adapted from a generic JSON-blob store into a Source
// backend that speaks op.Transform the way the jsonapi Source does.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	bolt "go.etcd.io/bbolt"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

const bucketName = "records"

// DB wraps a bbolt database with the handful of helpers the Source
// needs, mirroring the teacher's db/bolt.DB shape one-to-one.
type DB struct {
	*bolt.DB
}

// Open opens or creates a bbolt database at path, creating the records
// bucket if absent.
func Open(path string) (*DB, error) {
	boltDB, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("localstore: open database: %w", err)
	}
	db := &DB{boltDB}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = boltDB.Close()
		return nil, fmt.Errorf("localstore: create bucket: %w", err)
	}
	return db, nil
}

// recordKey derives the stable persistence key for a record identity
// (spec §6: "a stable key derived from record identity").
func recordKey(id model.Identity) string { return id.String() }

// Source is the LocalStorage reference Source. It maintains no relational
// cache of its own (the calling store's cache is the source of truth);
// it applies operations to a persisted per-record snapshot and answers
// fetches by re-reading that snapshot, the way the teacher's bolt wrapper is a
// thin, transactional key/value surface with no business logic above it.
type Source struct {
	db  *DB
	log *dsynclog.Logger
}

// New builds a LocalStorage Source over an already-open DB. log may be
// nil. It logs the current database file size, the way the teacher's
// downloader reports transfer size, so an operator tailing logs sees
// roughly how much local state has accumulated.
func New(db *DB, log *dsynclog.Logger) *Source {
	if log == nil {
		log = dsynclog.ForComponent(nil, "localstore")
	}
	if info, err := os.Stat(db.Path()); err == nil {
		log.WithField("size", humanize.Bytes(uint64(info.Size()))).Info("localstore opened")
	}
	return &Source{db: db, log: log}
}

// storedRecord is the JSON shape persisted per record: the keys and
// attributes the source has most recently observed, rebuilt incrementally
// as operations arrive. Relationships are not persisted; no operation
// writes the Relationships field.
type storedRecord struct {
	Type          string                        `json:"type"`
	ID            string                        `json:"id"`
	Keys          map[string]string             `json:"keys,omitempty"`
	Attributes    map[string]interface{}        `json:"attributes,omitempty"`
	Relationships map[string]json.RawMessage    `json:"relationships,omitempty"`
}

// DoTransform implements source.Transformer: each operation is applied
// to the persisted record in turn. DoUpdate delegates to the same logic,
// since a RequestStrategy forwarding an update to this source should
// have the identical effect as transforming it directly.
func (s *Source) DoTransform(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	for _, o := range t.Operations {
		if err := s.apply(o); err != nil {
			return nil, err
		}
	}
	return []op.Transform{t}, nil
}

// DoUpdate implements source.Updater identically to DoTransform.
func (s *Source) DoUpdate(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	return s.DoTransform(ctx, t)
}

// Query is the argument DoFetch understands: look up a single record by
// identity.
type Query struct {
	Ident model.Identity
}

// DoFetch implements source.Fetcher: a direct bbolt read of the record
// under Query.Ident's key.
func (s *Source) DoFetch(ctx context.Context, q interface{}) (interface{}, error) {
	query, ok := q.(Query)
	if !ok {
		return nil, fmt.Errorf("localstore: DoFetch requires a localstore.Query, got %T", q)
	}
	rec, ok, err := s.get(query.Ident)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dsyncerr.RecordNotFound(query.Ident.Type, query.Ident.ID)
	}
	return rec, nil
}

func (s *Source) apply(o op.Operation) error {
	switch o.Op {
	case op.AddRecord, op.ReplaceRecord:
		return s.put(recordFromModel(o.Record))
	case op.RemoveRecord:
		return s.delete(o.Ident)
	case op.ReplaceKey:
		return s.mutate(o.Ident, func(r *storedRecord) {
			if r.Keys == nil {
				r.Keys = make(map[string]string)
			}
			if sv, ok := o.Value.(string); ok {
				r.Keys[o.Key] = sv
			}
		})
	case op.ReplaceAttribute:
		return s.mutate(o.Ident, func(r *storedRecord) {
			if r.Attributes == nil {
				r.Attributes = make(map[string]interface{})
			}
			r.Attributes[o.Attribute] = o.Value
		})
	case op.AddToHasMany, op.RemoveFromHasMany, op.ReplaceHasMany, op.ReplaceHasOne:
		// Relationship bookkeeping for the wire-stable record lives in
		// the requesting store's cache; the local-persistence adapter
		// only needs a touch so the stored snapshot's presence reflects
		// that the record is live. Relationship shape reconciliation on
		// a LocalStorage re-fetch is the store's responsibility per
		// spec §1 (the adapter is "specified only by its interface").
		return s.touch(o.Ident)
	default:
		return fmt.Errorf("localstore: unsupported operation kind: %s", o.Op)
	}
}

func recordFromModel(r *model.Record) storedRecord {
	sr := storedRecord{Type: r.Type, ID: r.ID, Keys: r.Keys, Attributes: r.Attributes}
	return sr
}

func (s *Source) put(r storedRecord) error {
	return s.db.PutJSON(bucketName, recordKey(model.Identity{Type: r.Type, ID: r.ID}), r)
}

func (s *Source) delete(id model.Identity) error {
	return s.db.Delete(bucketName, recordKey(id))
}

func (s *Source) get(id model.Identity) (storedRecord, bool, error) {
	var rec storedRecord
	err := s.db.GetJSON(bucketName, recordKey(id), &rec)
	if err != nil {
		return storedRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *Source) touch(id model.Identity) error {
	rec, ok, err := s.get(id)
	if err != nil {
		return err
	}
	if !ok {
		rec = storedRecord{Type: id.Type, ID: id.ID}
	}
	return s.put(rec)
}

func (s *Source) mutate(id model.Identity, fn func(*storedRecord)) error {
	rec, ok, err := s.get(id)
	if err != nil {
		return err
	}
	if !ok {
		rec = storedRecord{Type: id.Type, ID: id.ID}
	}
	fn(&rec)
	return s.put(rec)
}

// VerifyContains reports whether a record with the given identity is
// currently persisted (spec §6: "verifyContains / verifyDoesNotContain
// are externally testable").
func (s *Source) VerifyContains(id model.Identity) (bool, error) {
	_, ok, err := s.get(id)
	return ok, err
}

// VerifyDoesNotContain is the negation of VerifyContains, provided
// separately so tests read the way the spec's scenarios phrase them.
func (s *Source) VerifyDoesNotContain(id model.Identity) (bool, error) {
	ok, err := s.VerifyContains(id)
	return !ok, err
}

// Close closes the underlying bbolt database.
func (s *Source) Close() error { return s.db.Close() }

// CreateBucket, PutJSON, GetJSON, Delete and ForEach mirror the teacher's
// db/bolt.DB helper surface so localstore.DB can be used directly by
// callers that want raw key/value access alongside the Source.

// CreateBucket creates a bucket if it doesn't exist.
func (db *DB) CreateBucket(name string) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("localstore: create bucket %s: %w", name, err)
		}
		return nil
	})
}

// PutJSON stores value as JSON under key in bucket.
func (db *DB) PutJSON(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("localstore: marshal JSON: %w", err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("localstore: bucket not found: %s", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// GetJSON reads the JSON value under key in bucket into value.
func (db *DB) GetJSON(bucket, key string, value interface{}) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("localstore: bucket not found: %s", bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("localstore: key not found: %s", key)
		}
		return json.Unmarshal(data, value)
	})
}

// Delete removes key from bucket.
func (db *DB) Delete(bucket, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("localstore: bucket not found: %s", bucket)
		}
		return b.Delete([]byte(key))
	})
}

// ForEach iterates over every key/value pair in bucket.
func (db *DB) ForEach(bucket string, fn func(key, value []byte) error) error {
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("localstore: bucket not found: %s", bucket)
		}
		return b.ForEach(fn)
	})
}
