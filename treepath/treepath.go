// Package treepath resolves slash-delimited tree paths into storage
// locations.
//
// A path such as "/users/alice/profile/name.json" resolves to the bucket
// "users", the record "alice" and the field locator "profile/name". Record
// ids are opaque strings and are never coerced to numbers. This package is
// the only place in the module that splits, joins or unquotes raw path
// strings.
package treepath

import "strings"

const (
	// Separator delimits path segments.
	Separator = "/"

	// SuffixMarker is the optional resource suffix stripped from paths.
	SuffixMarker = ".json"

	// RootScope is the index scope used for the empty path.
	RootScope = "__root__"
)

// Path is a parsed tree path. The zero Path is the root.
type Path struct {
	segments []string
}

// Parse resolves a raw path. Leading and trailing separators, a trailing
// suffix marker and empty segments are ignored. An empty result is the
// root path, not an error.
func Parse(raw string) Path {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, SuffixMarker)
	return Path{segments: split(raw)}
}

// New builds a path from already-split segments. Empty segments are dropped.
func New(segments ...string) Path {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return Path{segments: out}
}

// IsRoot reports whether p addresses the entire store.
func (p Path) IsRoot() bool { return len(p.segments) == 0 }

// IsBucket reports whether p addresses a whole bucket.
func (p Path) IsBucket() bool { return len(p.segments) == 1 }

// Depth returns the number of segments.
func (p Path) Depth() int { return len(p.segments) }

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Bucket returns segment 0, or "" for the root path.
func (p Path) Bucket() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[0]
}

// RecordID returns segment 1 verbatim.
func (p Path) RecordID() (string, bool) {
	if len(p.segments) < 2 {
		return "", false
	}
	return p.segments[1], true
}

// Field returns the locator formed by segments 2 and beyond.
func (p Path) Field() Locator {
	if len(p.segments) <= 2 {
		return Locator{}
	}
	return newLocator(p.segments[2:])
}

// Child returns p extended by a relative locator.
func (p Path) Child(rel Locator) Path {
	segs := make([]string, 0, len(p.segments)+len(rel.segments))
	segs = append(segs, p.segments...)
	segs = append(segs, rel.segments...)
	return Path{segments: segs}
}

// Scope returns the index-registry scope for p.
func (p Path) Scope() string {
	if len(p.segments) == 0 {
		return RootScope
	}
	return strings.Join(p.segments, Separator)
}

// String renders p with a leading separator.
func (p Path) String() string {
	return Separator + strings.Join(p.segments, Separator)
}

// Locator addresses a field inside a record value. The zero Locator
// addresses the whole value.
type Locator struct {
	segments []string
}

// ParseLocator splits a relative sub-path such as "profile/name".
func ParseLocator(rel string) Locator {
	return Locator{segments: split(rel)}
}

// NewLocator builds a locator from already-split segments.
func NewLocator(segments ...string) Locator {
	return New(segments...).locator()
}

func newLocator(segs []string) Locator {
	out := make([]string, len(segs))
	copy(out, segs)
	return Locator{segments: out}
}

func (p Path) locator() Locator { return Locator{segments: p.segments} }

// IsZero reports whether l addresses the whole value.
func (l Locator) IsZero() bool { return len(l.segments) == 0 }

// Depth returns the number of segments.
func (l Locator) Depth() int { return len(l.segments) }

// Segments returns a copy of the locator segments.
func (l Locator) Segments() []string { return newLocator(l.segments).segments }

// Parent returns l without its last segment.
func (l Locator) Parent() Locator {
	if len(l.segments) == 0 {
		return l
	}
	return newLocator(l.segments[:len(l.segments)-1])
}

// Last returns the final segment, or "" for the zero locator.
func (l Locator) Last() string {
	if len(l.segments) == 0 {
		return ""
	}
	return l.segments[len(l.segments)-1]
}

// Append returns l extended by rel.
func (l Locator) Append(rel Locator) Locator {
	segs := make([]string, 0, len(l.segments)+len(rel.segments))
	segs = append(segs, l.segments...)
	segs = append(segs, rel.segments...)
	return Locator{segments: segs}
}

// Join renders l with sep, the nested-field separator of a store adapter.
func (l Locator) Join(sep string) string {
	return strings.Join(l.segments, sep)
}

// String renders l with the path separator.
func (l Locator) String() string { return l.Join(Separator) }

// Unquote strips one pair of surrounding double quotes, as sent by clients
// for query parameters such as orderBy="$key".
func Unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func split(raw string) []string {
	parts := strings.Split(strings.Trim(raw, Separator), Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
