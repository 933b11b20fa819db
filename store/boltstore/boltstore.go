// Package boltstore implements store.Adapter on an embedded bbolt database.
//
// Each tree bucket is a top-level bbolt bucket and each record is a key in
// it holding the msgpack-encoded value. Every write runs in a single bbolt
// read-write transaction, which makes field-level set and unset atomic.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// Adapter is a bbolt-backed store.Adapter.
type Adapter struct {
	db *bbolt.DB
}

var _ store.Adapter = (*Adapter)(nil)

// Open opens (or creates) the database file at path.
func Open(path string) (*Adapter, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database. Close closes db.
func New(db *bbolt.DB) *Adapter {
	return &Adapter{db: db}
}

// DB returns the underlying database.
func (a *Adapter) DB() *bbolt.DB { return a.db }

func (a *Adapter) ExistsField(ctx context.Context, bucket, id string, loc treepath.Locator) (bool, error) {
	_, found, err := a.FindOne(ctx, bucket, id, loc)
	return found, err
}

func (a *Adapter) FindOne(ctx context.Context, bucket, id string, loc treepath.Locator) (store.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, false, err
	}
	var (
		rec   store.Record
		found bool
	)
	err := a.view(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		v, err := decode(data)
		if err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, id, err)
		}
		projected, ok := v.Get(loc.Segments())
		if !ok {
			return nil
		}
		rec, found = store.Record{ID: id, Value: projected}, true
		return nil
	})
	return rec, found, err
}

func (a *Adapter) FindMany(ctx context.Context, bucket string, opts store.FindOptions) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []store.Record
	err := a.view(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, data := c.First(); k != nil; k, data = c.Next() {
			if opts.Limit > 0 && len(recs) >= opts.Limit {
				break
			}
			v, err := decode(data)
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			recs = append(recs, store.Record{ID: string(k), Value: v})
		}
		return nil
	})
	return recs, err
}

func (a *Adapter) UpsertFieldSet(ctx context.Context, bucket, id string, loc treepath.Locator, v value.Value) (store.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return store.UpdateResult{}, err
	}
	var res store.UpdateResult
	err := a.update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		current := value.Null()
		if data := b.Get([]byte(id)); data != nil {
			if current, err = decode(data); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, id, err)
			}
			res.Matched = 1
		} else {
			res.Created = true
		}
		updated := current.Set(loc.Segments(), v)
		if res.Created || !value.Equal(current, updated) {
			res.Modified = 1
		}
		return put(b, id, updated)
	})
	if err != nil {
		return store.UpdateResult{}, err
	}
	return res, nil
}

func (a *Adapter) UnsetField(ctx context.Context, bucket, id string, loc treepath.Locator) (store.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return store.UpdateResult{}, err
	}
	var res store.UpdateResult
	err := a.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		current, err := decode(data)
		if err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, id, err)
		}
		res.Matched = 1
		updated, removed := current.Unset(loc.Segments())
		if !removed {
			return nil
		}
		res.Modified = 1
		return put(b, id, updated)
	})
	if err != nil {
		return store.UpdateResult{}, err
	}
	return res, nil
}

func (a *Adapter) InsertOne(ctx context.Context, bucket string, rec store.Record) error {
	_, err := a.InsertMany(ctx, bucket, []store.Record{rec})
	return err
}

func (a *Adapter) InsertMany(ctx context.Context, bucket string, recs []store.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	err := a.update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if b.Get([]byte(rec.ID)) != nil {
				return fmt.Errorf("%s/%s: %w", bucket, rec.ID, store.ErrDuplicateID)
			}
			if err := put(b, rec.ID, rec.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (a *Adapter) DeleteOne(ctx context.Context, bucket, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var existed bool
	err := a.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil || b.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(id))
	})
	return existed, err
}

func (a *Adapter) DropBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(bucket))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (a *Adapter) ListBuckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	err := a.view(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) view(fn func(*bbolt.Tx) error) error {
	return closedErr(a.db.View(fn))
}

func (a *Adapter) update(fn func(*bbolt.Tx) error) error {
	return closedErr(a.db.Update(fn))
}

// closedErr maps bbolt's closed-database error to store.ErrClosed.
func closedErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return store.ErrClosed
	}
	return err
}

func put(b *bbolt.Bucket, id string, v value.Value) error {
	data, err := msgpack.Marshal(v.Any())
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	return b.Put([]byte(id), data)
}

func decode(data []byte) (value.Value, error) {
	var raw any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return value.Value{}, err
	}
	return value.FromAny(raw)
}
