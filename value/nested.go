package value

import "strconv"

// Get returns the value found by walking path from v. Numeric segments
// index into sequences.
func (v Value) Get(path []string) (Value, bool) {
	cur := v
	for _, seg := range path {
		switch cur.kind {
		case KindMapping:
			child, ok := cur.m[seg]
			if !ok {
				return Value{}, false
			}
			cur = child
		case KindSequence:
			i, ok := Index(seg)
			if !ok || i >= len(cur.seq) {
				return Value{}, false
			}
			cur = cur.seq[i]
		case KindNull, KindBool, KindNumber, KindText:
			return Value{}, false
		}
	}
	return cur, true
}

// Has reports whether path exists in v.
func (v Value) Has(path []string) bool {
	_, ok := v.Get(path)
	return ok
}

// Set returns a copy of v with x stored at path. Missing intermediate
// containers are created as mappings, and scalars in the way are replaced.
// A numeric segment equal to a sequence's length appends.
func (v Value) Set(path []string, x Value) Value {
	if len(path) == 0 {
		return x
	}
	seg, rest := path[0], path[1:]
	switch v.kind {
	case KindMapping:
		m := v.Entries()
		m[seg] = m[seg].Set(rest, x)
		return Value{kind: KindMapping, m: m}
	case KindSequence:
		if i, ok := Index(seg); ok && i <= len(v.seq) {
			seq := v.Items()
			if i == len(seq) {
				seq = append(seq, Value{}.Set(rest, x))
			} else {
				seq[i] = seq[i].Set(rest, x)
			}
			return Value{kind: KindSequence, seq: seq}
		}
		m := v.indexMapping()
		m[seg] = m[seg].Set(rest, x)
		return Value{kind: KindMapping, m: m}
	case KindNull, KindBool, KindNumber, KindText:
	}
	return Nest(path, x)
}

// Unset returns a copy of v with path removed and whether anything was
// removed. Removing a sequence element shifts the following elements down.
// Unsetting the empty path yields null.
func (v Value) Unset(path []string) (Value, bool) {
	if len(path) == 0 {
		return Null(), true
	}
	seg, rest := path[0], path[1:]
	switch v.kind {
	case KindMapping:
		child, ok := v.m[seg]
		if !ok {
			return v, false
		}
		m := v.Entries()
		if len(rest) == 0 {
			delete(m, seg)
			return Value{kind: KindMapping, m: m}, true
		}
		updated, removed := child.Unset(rest)
		if !removed {
			return v, false
		}
		m[seg] = updated
		return Value{kind: KindMapping, m: m}, true
	case KindSequence:
		i, ok := Index(seg)
		if !ok || i >= len(v.seq) {
			return v, false
		}
		seq := v.Items()
		if len(rest) == 0 {
			seq = append(seq[:i], seq[i+1:]...)
			return Value{kind: KindSequence, seq: seq}, true
		}
		updated, removed := seq[i].Unset(rest)
		if !removed {
			return v, false
		}
		seq[i] = updated
		return Value{kind: KindSequence, seq: seq}, true
	case KindNull, KindBool, KindNumber, KindText:
	}
	return v, false
}

// Nest wraps x in one mapping per path segment, outermost first.
func Nest(path []string, x Value) Value {
	out := x
	for i := len(path) - 1; i >= 0; i-- {
		out = Value{kind: KindMapping, m: map[string]Value{path[i]: out}}
	}
	return out
}

// Index parses a canonical non-negative decimal sequence index.
func Index(seg string) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || strconv.Itoa(i) != seg {
		return 0, false
	}
	return i, true
}

func (v Value) indexMapping() map[string]Value {
	m := make(map[string]Value, len(v.seq))
	for i, item := range v.seq {
		m[strconv.Itoa(i)] = item
	}
	return m
}
