// Package keylock provides a table of per-key mutexes.
//
// Entries are created on first use and removed when the last holder
// releases them, so the table only grows with the number of keys that are
// locked concurrently.
package keylock

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table serializes work per key.
type Table struct {
	entries *xsync.MapOf[string, *entry]
}

// New creates an empty Table.
func New() *Table {
	return &Table{entries: xsync.NewMapOf[string, *entry]()}
}

// Key builds the table key for a record.
func Key(bucket, id string) string {
	return bucket + "\x00" + id
}

// Lock blocks until key is held and returns the function that releases it.
func (t *Table) Lock(key string) (unlock func()) {
	e, _ := t.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			old = &entry{}
		}
		old.refs++
		return old, false
	})
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (t *Table) Len() int {
	return t.entries.Size()
}
