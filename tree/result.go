package tree

import (
	"bytes"
	"encoding/json"

	"github.com/jacentio/arbor/value"
)

// Entry is one keyed match of a listing query.
type Entry struct {
	Key   string
	Value value.Value
}

// Result is the outcome of a query: an ordered listing, a single value, or
// null when nothing matched.
type Result struct {
	// Entries holds the matches of a listing in query order. It is nil for
	// single-value and null results.
	Entries []Entry

	single   value.Value
	isSingle bool
}

// Single returns a single-value result.
func Single(v value.Value) Result {
	return Result{single: v, isSingle: true}
}

// Listing returns a listing result. An empty listing is null.
func Listing(entries []Entry) Result {
	if len(entries) == 0 {
		return Result{}
	}
	return Result{Entries: entries}
}

// IsNull reports whether nothing matched.
func (r Result) IsNull() bool {
	if r.isSingle {
		return r.single.IsNull()
	}
	return len(r.Entries) == 0
}

// Single returns the value of a single-value result.
func (r Result) Single() (value.Value, bool) {
	return r.single, r.isSingle
}

// Keys returns the entry keys in query order.
func (r Result) Keys() []string {
	keys := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Value flattens r into a value. Listings become a mapping, which does not
// keep query order.
func (r Result) Value() value.Value {
	if r.isSingle {
		return r.single
	}
	if len(r.Entries) == 0 {
		return value.Null()
	}
	m := make(map[string]value.Value, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Key] = e.Value
	}
	return value.Mapping(m)
}

// MarshalJSON renders listings as a JSON object whose members follow query
// order.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.isSingle || len(r.Entries) == 0 {
		return r.Value().MarshalJSON()
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := e.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
