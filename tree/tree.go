package tree

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jacentio/arbor/internal/keylock"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/treepath"
)

const (
	// reservedPrefix marks buckets used internally by the tree.
	reservedPrefix = "__"

	// rulesBucket holds one record per index scope.
	rulesBucket = reservedPrefix + "rules__"
)

// Tree is a JSON document tree stored through a store.Adapter.
type Tree struct {
	store  store.Adapter
	locks  *keylock.Table
	config Config
	logger *slog.Logger
}

// New creates a Tree on adapter. The Tree does not own adapter until Close
// is called.
func New(adapter store.Adapter, config Config) *Tree {
	config.validate()
	return &Tree{
		store:  adapter,
		locks:  keylock.New(),
		config: config,
		logger: config.Logger,
	}
}

// Close closes the underlying adapter.
func (t *Tree) Close() error {
	return t.store.Close()
}

// IsReserved reports whether bucket is internal to the tree.
func IsReserved(bucket string) bool {
	return strings.HasPrefix(bucket, reservedPrefix)
}

// checkPath rejects paths into reserved buckets.
func checkPath(p treepath.Path) error {
	if IsReserved(p.Bucket()) {
		return fmt.Errorf("%w: bucket %q is reserved", ErrInvalidPath, p.Bucket())
	}
	return nil
}

// lockRecord serializes multi-step work on one record.
func (t *Tree) lockRecord(bucket, id string) (unlock func()) {
	return t.locks.Lock(keylock.Key(bucket, id))
}

// userBuckets lists the buckets visible through the tree.
func (t *Tree) userBuckets(ctx context.Context) ([]string, error) {
	names, err := t.store.ListBuckets(ctx)
	if err != nil {
		return nil, storageError("list buckets", err)
	}
	out := names[:0]
	for _, name := range names {
		if !IsReserved(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// verify reports ErrStorage when write verification is enabled and ok is
// false.
func (t *Tree) verify(ok bool, format string, args ...any) error {
	if ok || !t.config.VerifyWrites {
		return nil
	}
	return fmt.Errorf("%w: verify: %s", ErrStorage, fmt.Sprintf(format, args...))
}
