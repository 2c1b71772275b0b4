// Package boltstore keeps collections in a bbolt database file: one bucket
// per collection, keyed by record id, values encoded with msgpack.
package boltstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/kvdao"
	"github.com/roach88/shelf/internal/schema"
)

// Options configures Open.
type Options struct {
	kvdao.Options

	// Timeout bounds the wait for the database file lock. Defaults to 10s.
	Timeout time.Duration

	// NoSync skips fsync after each commit. Only for tests.
	NoSync bool
}

// Records implements kvdao.Records over one bucket.
type Records struct {
	db     *bbolt.DB
	bucket []byte
	schema *schema.Schema
}

var _ kvdao.Records = (*Records)(nil)

// Open opens (or creates) the database at path and returns a Dao over the
// bucket for s. Closing the Dao closes the database.
func Open(ctx context.Context, path string, s *schema.Schema, opts Options) (*kvdao.Store, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{
		Timeout: opts.Timeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	recs, err := NewRecords(bdb, s)
	if err != nil {
		bdb.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "bolt store opened", "collection", s.Name(), "path", path)
	return kvdao.New(s, recs, opts.Options), nil
}

// NewRecords makes sure the collection bucket exists in db.
func NewRecords(db *bbolt.DB, s *schema.Schema) (*Records, error) {
	r := &Records{db: db, bucket: []byte(s.Name()), schema: s}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(r.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", s.Name(), err)
	}
	return r, nil
}

// Close closes the database.
func (r *Records) Close() error {
	return r.db.Close()
}

// Bolt returns the underlying database.
func (r *Records) Bolt() *bbolt.DB { return r.db }

// Get decodes one record.
func (r *Records) Get(ctx context.Context, id ir.ID) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec ir.Object
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(r.bucket).Get([]byte(id))
		if data == nil {
			return ir.NotFound(id)
		}
		var err error
		rec, err = r.decode(id, data)
		return err
	})
	return rec, err
}

// Insert stores a new record.
func (r *Records) Insert(ctx context.Context, id ir.ID, rec ir.Object) error {
	return r.put(ctx, id, rec, false)
}

// Replace overwrites an existing record.
func (r *Records) Replace(ctx context.Context, id ir.ID, rec ir.Object) error {
	return r.put(ctx, id, rec, true)
}

func (r *Records) put(ctx context.Context, id ir.ID, rec ir.Object, replace bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := []byte(id)
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		exists := b.Get(key) != nil
		switch {
		case replace && !exists:
			return ir.NotFound(id)
		case !replace && exists:
			return ir.AlreadyExists(id)
		}
		return b.Put(key, data)
	})
}

// Remove deletes one record.
func (r *Records) Remove(ctx context.Context, id ir.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(id)
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b.Get(key) == nil {
			return ir.NotFound(id)
		}
		return b.Delete(key)
	})
}

// All decodes every record in key order.
func (r *Records) All(ctx context.Context) ([]ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ir.Object
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(k, v []byte) error {
			rec, err := r.decode(ir.ID(k), v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear drops and recreates the bucket.
func (r *Records) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := r.db.Update(func(tx *bbolt.Tx) error {
		n = tx.Bucket(r.bucket).Stats().KeyN
		if err := tx.DeleteBucket(r.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(r.bucket)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear bucket %s: %w", r.bucket, err)
	}
	return n, nil
}

func (r *Records) decode(id ir.ID, data []byte) (ir.Object, error) {
	rec, err := decodeRecord(r.schema, data)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	if got, _ := rec.ID(); got != id {
		return nil, ir.InvalidRecord(ir.IDField, "key %q holds record %q", id, got).WithID(id)
	}
	return rec, nil
}
