package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when a write body is missing or has the wrong shape.
	ErrInvalidPayload = errors.New("arbor: invalid payload")

	// ErrInvalidQuery is returned for an illegal combination of query parameters.
	ErrInvalidQuery = errors.New("arbor: invalid query")

	// ErrInvalidFilterType is returned when a range bound has a kind the ordering cannot compare.
	ErrInvalidFilterType = errors.New("arbor: invalid filter type")

	// ErrIndexNotDefined is returned when a query orders on something no index rule permits.
	ErrIndexNotDefined = errors.New("arbor: index not defined")

	// ErrNotFound is returned when the target of a delete or query does not exist.
	ErrNotFound = errors.New("arbor: not found")

	// ErrStorage is returned when an adapter call fails or a write could not be verified.
	ErrStorage = errors.New("arbor: storage failure")

	// ErrInvalidPath is returned for paths an operation cannot address.
	ErrInvalidPath = errors.New("arbor: invalid path")
)

// IndexNotDefinedError carries the scope and field a caller has to declare
// an index rule for.
type IndexNotDefinedError struct {
	Scope string
	Field string
}

func (e *IndexNotDefinedError) Error() string {
	return fmt.Sprintf("arbor: index not defined, add \".indexOn\": %q at %q", e.Field, e.Scope)
}

// Is makes errors.Is(err, ErrIndexNotDefined) match.
func (e *IndexNotDefinedError) Is(target error) bool {
	return target == ErrIndexNotDefined
}

// storageError wraps an adapter failure so that it matches ErrStorage while
// keeping the cause reachable.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
