package store

import (
	"context"

	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// Record is an identified value inside a bucket.
type Record struct {
	// ID is unique within the bucket.
	ID string

	// Value is the record's stored document.
	Value value.Value
}

// FindOptions configures FindMany.
type FindOptions struct {
	// Limit caps the number of records returned (0 = no limit).
	Limit int
}

// UpdateResult reports the effect of a field-level write.
type UpdateResult struct {
	// Matched is the number of records the write addressed (0 or 1).
	Matched int

	// Modified is the number of records whose stored value changed.
	Modified int

	// Created is true when the write inserted a new record.
	Created bool
}

// Adapter is the narrow contract the tree uses against a backing document
// store. Implementations must make UpsertFieldSet and UnsetField atomic for
// a single record; nothing else is assumed about the store.
type Adapter interface {
	// ExistsField reports whether record id exists in bucket and holds a
	// value at loc. The zero locator checks record existence.
	ExistsField(ctx context.Context, bucket, id string, loc treepath.Locator) (bool, error)

	// FindOne returns the record with its value projected to loc.
	// found is false when the record or the projected field is absent.
	FindOne(ctx context.Context, bucket, id string, loc treepath.Locator) (rec Record, found bool, err error)

	// FindMany returns the records of bucket in ascending id order.
	FindMany(ctx context.Context, bucket string, opts FindOptions) ([]Record, error)

	// UpsertFieldSet stores v at loc inside record id, creating the record
	// and any missing intermediate mappings.
	UpsertFieldSet(ctx context.Context, bucket, id string, loc treepath.Locator, v value.Value) (UpdateResult, error)

	// UnsetField removes loc from record id. A missing field is not an error;
	// it is reported through UpdateResult.Modified == 0.
	UnsetField(ctx context.Context, bucket, id string, loc treepath.Locator) (UpdateResult, error)

	// InsertOne adds a new record. Returns ErrDuplicateID if the id is taken.
	InsertOne(ctx context.Context, bucket string, rec Record) error

	// InsertMany adds records and returns how many were written.
	InsertMany(ctx context.Context, bucket string, recs []Record) (int, error)

	// DeleteOne removes a record and reports whether it existed.
	DeleteOne(ctx context.Context, bucket, id string) (bool, error)

	// DropBucket removes a bucket and all of its records. Dropping a missing
	// bucket is not an error.
	DropBucket(ctx context.Context, bucket string) error

	// ListBuckets returns the names of all buckets in ascending order.
	ListBuckets(ctx context.Context) ([]string, error)

	// Close releases the adapter's resources.
	Close() error
}
