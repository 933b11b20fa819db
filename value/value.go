// Package value provides the JSON value model stored in the tree.
//
// A [Value] is an immutable tagged union over the six JSON shapes. Code that
// needs to branch on the shape switches on [Value.Kind]; every switch in this
// module covers all kinds.
package value

import (
	"sort"
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindSequence
	KindMapping
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return "unknown"
}

// Value is a JSON value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Sequence returns an ordered sequence of values.
func Sequence(items ...Value) Value {
	seq := make([]Value, len(items))
	copy(seq, items)
	return Value{kind: KindSequence, seq: seq}
}

// Mapping returns a keyed mapping. The map is copied.
func Mapping(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMapping, m: cp}
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload; ok is false for other kinds.
func (v Value) AsNumber() (n float64, ok bool) { return v.n, v.kind == KindNumber }

// AsText returns the string payload; ok is false for other kinds.
func (v Value) AsText() (s string, ok bool) { return v.s, v.kind == KindText }

// Items returns a copy of the sequence elements, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	out := make([]Value, len(v.seq))
	copy(out, v.seq)
	return out
}

// Len returns the number of children of a sequence or mapping, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.m)
	case KindNull, KindBool, KindNumber, KindText:
	}
	return 0
}

// Keys returns the mapping keys in ascending order, or nil for other kinds.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the mapping entry for key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Entries returns a copy of the mapping, or nil for other kinds.
func (v Value) Entries() map[string]Value {
	if v.kind != KindMapping {
		return nil
	}
	out := make(map[string]Value, len(v.m))
	for k, c := range v.m {
		out[k] = c
	}
	return out
}

// IsEmpty reports whether v holds no data: null, an empty sequence or an
// empty mapping.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindSequence:
		return len(v.seq) == 0
	case KindMapping:
		return len(v.m) == 0
	case KindBool, KindNumber, KindText:
	}
	return false
}
