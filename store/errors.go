package store

import "errors"

var (
	// ErrDuplicateID is returned when inserting a record whose id already exists.
	ErrDuplicateID = errors.New("arbor: record id already exists")

	// ErrConflict is returned when an optimistic write kept losing to
	// concurrent writers and gave up.
	ErrConflict = errors.New("arbor: record was modified concurrently")

	// ErrClosed is returned by adapters after Close.
	ErrClosed = errors.New("arbor: store is closed")
)
