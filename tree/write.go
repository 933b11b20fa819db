package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// Create stores v under a generated id and returns the id.
//
// At a bucket path a new record is appended. At the root v must be a
// mapping; it populates a new bucket with a generated name, one record per
// key, and the bucket name is returned. Record and field paths are
// rejected.
func (t *Tree) Create(ctx context.Context, p treepath.Path, v value.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("%w: create requires a value", ErrInvalidPayload)
	}
	if err := checkPath(p); err != nil {
		return "", err
	}

	switch {
	case p.IsRoot():
		if err := checkBucketValue(v); err != nil {
			return "", err
		}
		name := t.config.NewID()
		if err := t.fillBucket(ctx, name, v); err != nil {
			return "", err
		}
		t.logger.Debug("created bucket", "bucket", name, "records", v.Len())
		return name, nil

	case p.IsBucket():
		bucket := p.Bucket()
		id := t.config.NewID()
		if err := t.store.InsertOne(ctx, bucket, store.Record{ID: id, Value: v}); err != nil {
			return "", storageError("insert", err)
		}
		if err := t.verifyField(ctx, bucket, id, treepath.Locator{}); err != nil {
			return "", err
		}
		t.logger.Debug("created record", "bucket", bucket, "id", id)
		return id, nil
	}
	return "", fmt.Errorf("%w: create at %s, records can only be created in a bucket", ErrInvalidPath, p)
}

// Replace overwrites the value at p with v and returns v.
//
// At the root every bucket is replaced by the mapping's entries; at a bucket
// the bucket's records are replaced by the mapping's entries. At a record or
// field path the location is set in place, creating the record and any
// missing parents, and siblings are preserved.
func (t *Tree) Replace(ctx context.Context, p treepath.Path, v value.Value) (value.Value, error) {
	if v.IsNull() {
		return value.Null(), fmt.Errorf("%w: replace requires a value", ErrInvalidPayload)
	}
	if err := checkPath(p); err != nil {
		return value.Null(), err
	}

	switch {
	case p.IsRoot():
		if err := t.replaceRoot(ctx, v); err != nil {
			return value.Null(), err
		}
	case p.IsBucket():
		if err := checkBucketValue(v); err != nil {
			return value.Null(), err
		}
		if err := t.store.DropBucket(ctx, p.Bucket()); err != nil {
			return value.Null(), storageError("drop bucket", err)
		}
		if err := t.fillBucket(ctx, p.Bucket(), v); err != nil {
			return value.Null(), err
		}
	default:
		bucket := p.Bucket()
		id, _ := p.RecordID()
		unlock := t.lockRecord(bucket, id)
		err := t.setField(ctx, bucket, id, p.Field(), v)
		unlock()
		if err != nil {
			return value.Null(), err
		}
	}
	return v, nil
}

// Merge writes each entry of the mapping v below p, leaving unmentioned keys
// untouched, and returns v. Keys may be relative sub-paths such as
// "profile/name". A null entry removes the addressed location.
//
// At a record or field path all entries are applied under one record lock;
// if the record does not exist the merged structure is inserted. At the root
// and at a bucket each entry replaces the child it names.
func (t *Tree) Merge(ctx context.Context, p treepath.Path, v value.Value) (value.Value, error) {
	if v.Kind() != value.KindMapping {
		return value.Null(), fmt.Errorf("%w: merge requires a mapping, got %s", ErrInvalidPayload, v.Kind())
	}
	if err := checkPath(p); err != nil {
		return value.Null(), err
	}
	for _, key := range v.Keys() {
		if treepath.ParseLocator(key).IsZero() {
			return value.Null(), fmt.Errorf("%w: empty merge key %q", ErrInvalidPayload, key)
		}
	}

	if p.IsRoot() || p.IsBucket() {
		for _, key := range v.Keys() {
			item, _ := v.Field(key)
			child := p.Child(treepath.ParseLocator(key))
			if item.IsNull() {
				if err := t.Remove(ctx, child); err != nil && !errors.Is(err, ErrNotFound) {
					return value.Null(), err
				}
				continue
			}
			if _, err := t.Replace(ctx, child, item); err != nil {
				return value.Null(), err
			}
		}
		return v, nil
	}

	removed, err := t.mergeRecord(ctx, p, v)
	if err != nil {
		return value.Null(), err
	}
	if removed {
		return v, t.cleanupBucket(ctx, p.Bucket())
	}
	return v, nil
}

// Remove deletes the location at p.
//
// Removing the root or a bucket is idempotent. Removing a record or field
// fails with ErrNotFound when it does not exist; a record left empty is
// deleted, and a bucket left without records is dropped.
func (t *Tree) Remove(ctx context.Context, p treepath.Path) error {
	if err := checkPath(p); err != nil {
		return err
	}

	switch {
	case p.IsRoot():
		buckets, err := t.userBuckets(ctx)
		if err != nil {
			return err
		}
		for _, bucket := range buckets {
			if err := t.store.DropBucket(ctx, bucket); err != nil {
				return storageError("drop bucket", err)
			}
		}
		t.logger.Debug("dropped all buckets", "count", len(buckets))
		return nil
	case p.IsBucket():
		if err := t.store.DropBucket(ctx, p.Bucket()); err != nil {
			return storageError("drop bucket", err)
		}
		return nil
	}

	if err := t.removeAt(ctx, p); err != nil {
		return err
	}
	return t.cleanupBucket(ctx, p.Bucket())
}

func (t *Tree) replaceRoot(ctx context.Context, v value.Value) error {
	if v.Kind() != value.KindMapping {
		return fmt.Errorf("%w: root value must be a mapping of buckets, got %s", ErrInvalidPayload, v.Kind())
	}
	for _, name := range v.Keys() {
		if !plainKey(name) {
			return fmt.Errorf("%w: bucket name %q", ErrInvalidPayload, name)
		}
		if IsReserved(name) {
			return fmt.Errorf("%w: bucket %q is reserved", ErrInvalidPath, name)
		}
		item, _ := v.Field(name)
		if item.IsNull() {
			continue
		}
		if err := checkBucketValue(item); err != nil {
			return fmt.Errorf("bucket %q: %w", name, err)
		}
	}

	buckets, err := t.userBuckets(ctx)
	if err != nil {
		return err
	}
	for _, bucket := range buckets {
		if err := t.store.DropBucket(ctx, bucket); err != nil {
			return storageError("drop bucket", err)
		}
	}
	for _, name := range v.Keys() {
		item, _ := v.Field(name)
		if item.IsNull() {
			continue
		}
		if err := t.fillBucket(ctx, name, item); err != nil {
			return err
		}
	}
	return nil
}

// fillBucket inserts one record per non-null entry of the mapping v.
func (t *Tree) fillBucket(ctx context.Context, bucket string, v value.Value) error {
	recs := make([]store.Record, 0, v.Len())
	for _, key := range v.Keys() {
		item, _ := v.Field(key)
		if item.IsNull() {
			continue
		}
		recs = append(recs, store.Record{ID: key, Value: item})
	}
	if len(recs) == 0 {
		return nil
	}
	n, err := t.store.InsertMany(ctx, bucket, recs)
	if err != nil {
		return storageError("insert many", err)
	}
	return t.verify(n == len(recs), "%s: inserted %d of %d records", bucket, n, len(recs))
}

// setField stores v at loc inside record id, inserting the record with the
// nested structure synthesized from loc when it does not exist. Callers hold
// the record lock.
func (t *Tree) setField(ctx context.Context, bucket, id string, loc treepath.Locator, v value.Value) error {
	exists, err := t.store.ExistsField(ctx, bucket, id, treepath.Locator{})
	if err != nil {
		return storageError("exists", err)
	}
	if !exists {
		err := t.store.InsertOne(ctx, bucket, store.Record{ID: id, Value: value.Nest(loc.Segments(), v)})
		switch {
		case err == nil:
			return t.verifyField(ctx, bucket, id, loc)
		case errors.Is(err, store.ErrDuplicateID):
			// Inserted by another process after the check; set the field instead.
		default:
			return storageError("insert", err)
		}
	}

	res, err := t.store.UpsertFieldSet(ctx, bucket, id, loc, v)
	if err != nil {
		return storageError("upsert", err)
	}
	if err := t.verify(res.Matched == 1 || res.Created, "%s/%s: upsert matched %d records", bucket, id, res.Matched); err != nil {
		return err
	}
	return t.verifyField(ctx, bucket, id, loc)
}

// mergeRecord applies the entries of v below a record or field path and
// reports whether the record was deleted because null entries emptied it.
func (t *Tree) mergeRecord(ctx context.Context, p treepath.Path, v value.Value) (bool, error) {
	bucket := p.Bucket()
	id, _ := p.RecordID()
	base := p.Field()

	unlock := t.lockRecord(bucket, id)
	defer unlock()

	exists, err := t.store.ExistsField(ctx, bucket, id, treepath.Locator{})
	if err != nil {
		return false, storageError("exists", err)
	}
	if !exists {
		merged := value.Null()
		for _, key := range v.Keys() {
			item, _ := v.Field(key)
			if item.IsNull() {
				continue
			}
			merged = merged.Set(treepath.ParseLocator(key).Segments(), item)
		}
		if merged.IsNull() {
			return false, nil
		}
		return false, t.setField(ctx, bucket, id, base, merged)
	}

	unset := false
	for _, key := range v.Keys() {
		item, _ := v.Field(key)
		loc := base.Append(treepath.ParseLocator(key))
		if item.IsNull() {
			if _, err := t.store.UnsetField(ctx, bucket, id, loc); err != nil {
				return false, storageError("unset", err)
			}
			unset = true
			continue
		}
		res, err := t.store.UpsertFieldSet(ctx, bucket, id, loc, item)
		if err != nil {
			return false, storageError("upsert", err)
		}
		if err := t.verify(res.Matched == 1 || res.Created, "%s/%s: upsert matched %d records", bucket, id, res.Matched); err != nil {
			return false, err
		}
		if err := t.verifyField(ctx, bucket, id, loc); err != nil {
			return false, err
		}
	}
	if !unset {
		return false, nil
	}
	return t.cleanupRecord(ctx, bucket, id)
}

func (t *Tree) removeAt(ctx context.Context, p treepath.Path) error {
	bucket := p.Bucket()
	id, _ := p.RecordID()
	loc := p.Field()

	unlock := t.lockRecord(bucket, id)
	defer unlock()

	exists, err := t.store.ExistsField(ctx, bucket, id, loc)
	if err != nil {
		return storageError("exists", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	if loc.IsZero() {
		deleted, err := t.store.DeleteOne(ctx, bucket, id)
		if err != nil {
			return storageError("delete", err)
		}
		return t.verify(deleted, "%s/%s: record not deleted", bucket, id)
	}

	res, err := t.store.UnsetField(ctx, bucket, id, loc)
	if err != nil {
		return storageError("unset", err)
	}
	if err := t.verify(res.Modified == 1, "%s/%s: unset modified %d records", bucket, id, res.Modified); err != nil {
		return err
	}
	_, err = t.cleanupRecord(ctx, bucket, id)
	return err
}

// cleanupRecord deletes record id if its value is empty. Callers hold the
// record lock.
func (t *Tree) cleanupRecord(ctx context.Context, bucket, id string) (bool, error) {
	rec, found, err := t.store.FindOne(ctx, bucket, id, treepath.Locator{})
	if err != nil {
		return false, storageError("find", err)
	}
	if !found || !rec.Value.IsEmpty() {
		return false, nil
	}
	deleted, err := t.store.DeleteOne(ctx, bucket, id)
	if err != nil {
		return false, storageError("delete", err)
	}
	t.logger.Debug("deleted empty record", "bucket", bucket, "id", id)
	return deleted, nil
}

// cleanupBucket drops bucket when it no longer holds records.
func (t *Tree) cleanupBucket(ctx context.Context, bucket string) error {
	if !t.config.SyncBucketCleanup {
		return nil
	}
	recs, err := t.store.FindMany(ctx, bucket, store.FindOptions{Limit: 1})
	if err != nil {
		return storageError("find many", err)
	}
	if len(recs) > 0 {
		return nil
	}
	if err := t.store.DropBucket(ctx, bucket); err != nil {
		return storageError("drop bucket", err)
	}
	t.logger.Debug("dropped empty bucket", "bucket", bucket)
	return nil
}

// verifyField re-reads loc and reports ErrStorage when it is missing.
func (t *Tree) verifyField(ctx context.Context, bucket, id string, loc treepath.Locator) error {
	if !t.config.VerifyWrites {
		return nil
	}
	ok, err := t.store.ExistsField(ctx, bucket, id, loc)
	if err != nil {
		return storageError("verify", err)
	}
	return t.verify(ok, "%s/%s: %q missing after write", bucket, id, loc.String())
}

// checkBucketValue validates a value that populates a bucket.
func checkBucketValue(v value.Value) error {
	if v.Kind() != value.KindMapping {
		return fmt.Errorf("%w: bucket value must be a mapping, got %s", ErrInvalidPayload, v.Kind())
	}
	for _, key := range v.Keys() {
		if !plainKey(key) {
			return fmt.Errorf("%w: record id %q", ErrInvalidPayload, key)
		}
	}
	return nil
}

// plainKey reports whether key is a single path segment.
func plainKey(key string) bool {
	loc := treepath.ParseLocator(key)
	return loc.Depth() == 1 && loc.Last() == key
}
