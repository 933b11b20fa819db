package tree

import (
	"fmt"
	"strconv"

	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// OrderKind selects how query candidates are ordered.
type OrderKind uint8

const (
	// OrderNone returns candidates ascending by key without filtering.
	OrderNone OrderKind = iota
	// OrderByKey orders by record id or child key.
	OrderByKey
	// OrderByValue orders by the candidates' values.
	OrderByValue
	// OrderByField orders by a named field of each candidate.
	OrderByField
)

// Index rule markers for ordering by key and by value.
const (
	IndexKey   = ".key"
	IndexValue = ".value"
)

// Query parameter values selecting key and value ordering.
const (
	orderKeyParam   = "$key"
	orderValueParam = "$value"
)

// OrderBy is the ordering of a query.
type OrderBy struct {
	Kind OrderKind

	// Field is the child field for OrderByField. It may be a relative
	// sub-path such as "address/city".
	Field string
}

// ByKey orders by key.
func ByKey() OrderBy { return OrderBy{Kind: OrderByKey} }

// ByValue orders by value.
func ByValue() OrderBy { return OrderBy{Kind: OrderByValue} }

// ByField orders by the named child field.
func ByField(name string) OrderBy { return OrderBy{Kind: OrderByField, Field: name} }

// indexName is the name an index rule has to permit for o.
func (o OrderBy) indexName() string {
	switch o.Kind {
	case OrderByKey:
		return IndexKey
	case OrderByValue:
		return IndexValue
	case OrderByField:
		return o.Field
	case OrderNone:
	}
	return ""
}

// String renders o as a query parameter value.
func (o OrderBy) String() string {
	switch o.Kind {
	case OrderByKey:
		return orderKeyParam
	case OrderByValue:
		return orderValueParam
	case OrderByField:
		return o.Field
	case OrderNone:
	}
	return ""
}

// QuerySpec is a validated set of ordering, filtering and limiting
// parameters. The zero QuerySpec returns the addressed location unfiltered.
type QuerySpec struct {
	OrderBy OrderBy

	// StartAt and EndAt are inclusive bounds on the ordering key.
	StartAt *value.Value
	EndAt   *value.Value

	// EqualTo keeps candidates whose ordering key equals it.
	EqualTo *value.Value

	// LimitToFirst keeps the first n ordered candidates (0 = unset).
	LimitToFirst int

	// LimitToLast keeps the last n ordered candidates (0 = unset).
	LimitToLast int
}

// IsZero reports whether q applies no ordering, filter or limit.
func (q QuerySpec) IsZero() bool {
	return q.OrderBy.Kind == OrderNone && !q.filtered() && q.LimitToFirst == 0 && q.LimitToLast == 0
}

func (q QuerySpec) filtered() bool {
	return q.StartAt != nil || q.EndAt != nil || q.EqualTo != nil
}

// Validate checks the parameter combination.
func (q QuerySpec) Validate() error {
	if q.LimitToFirst < 0 || q.LimitToLast < 0 {
		return fmt.Errorf("%w: limits must be positive", ErrInvalidQuery)
	}
	if q.LimitToFirst > 0 && q.LimitToLast > 0 {
		return fmt.Errorf("%w: limitToFirst and limitToLast are mutually exclusive", ErrInvalidQuery)
	}
	if q.OrderBy.Kind == OrderNone && !q.IsZero() {
		return fmt.Errorf("%w: filters and limits require orderBy", ErrInvalidQuery)
	}
	if q.OrderBy.Kind == OrderByField && treepath.ParseLocator(q.OrderBy.Field).IsZero() {
		return fmt.Errorf("%w: orderBy field is empty", ErrInvalidQuery)
	}
	if q.OrderBy.Kind > OrderByField {
		return fmt.Errorf("%w: unknown order kind %d", ErrInvalidQuery, q.OrderBy.Kind)
	}
	return nil
}

// ParseQuery builds a QuerySpec from raw transport parameters: orderBy,
// startAt, endAt, equalTo, limitToFirst and limitToLast. orderBy accepts
// "$key", "$value" or a field name, quoted or not. Bounds are parsed as
// JSON and fall back to text. Unknown parameters are ignored.
func ParseQuery(params map[string]string) (QuerySpec, error) {
	var q QuerySpec

	if raw, ok := params["orderBy"]; ok {
		q.OrderBy = ParseOrderBy(raw)
	}
	q.StartAt = parseBound(params, "startAt")
	q.EndAt = parseBound(params, "endAt")
	q.EqualTo = parseBound(params, "equalTo")

	var err error
	if q.LimitToFirst, err = parseLimit(params, "limitToFirst"); err != nil {
		return QuerySpec{}, err
	}
	if q.LimitToLast, err = parseLimit(params, "limitToLast"); err != nil {
		return QuerySpec{}, err
	}
	if err := q.Validate(); err != nil {
		return QuerySpec{}, err
	}
	return q, nil
}

// ParseOrderBy parses an orderBy parameter.
func ParseOrderBy(raw string) OrderBy {
	switch name := treepath.Unquote(raw); name {
	case "":
		return OrderBy{}
	case orderKeyParam:
		return ByKey()
	case orderValueParam:
		return ByValue()
	default:
		return ByField(name)
	}
}

// ParseBound parses a filter bound as JSON, falling back to text.
func ParseBound(raw string) value.Value {
	v, err := value.Parse([]byte(raw))
	if err != nil {
		return value.Text(treepath.Unquote(raw))
	}
	return v
}

func parseBound(params map[string]string, name string) *value.Value {
	raw, ok := params[name]
	if !ok {
		return nil
	}
	v := ParseBound(raw)
	return &v
}

func parseLimit(params map[string]string, name string) (int, error) {
	raw, ok := params[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(treepath.Unquote(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidQuery, name, raw)
	}
	return n, nil
}
