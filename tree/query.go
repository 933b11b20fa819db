package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// candidate is one child of the queried location.
type candidate struct {
	key   string
	value value.Value

	// sortKey is what ordering and filters compare.
	sortKey value.Value
}

// candidateSet holds the children of the queried location. indexed is true
// when the children are sequence elements keyed by decimal index.
type candidateSet struct {
	items   []candidate
	indexed bool
}

// Get returns the value at p unfiltered.
func (t *Tree) Get(ctx context.Context, p treepath.Path) (Result, error) {
	return t.Query(ctx, p, QuerySpec{})
}

// Query returns the children of the location at p ordered, filtered and
// limited according to q.
//
// At the root the children are buckets, at a bucket its records, and below
// a record the entries of the addressed mapping or sequence. With the zero
// QuerySpec a record or field path returns its value as a single result.
func (t *Tree) Query(ctx context.Context, p treepath.Path, q QuerySpec) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	if err := checkPath(p); err != nil {
		return Result{}, err
	}

	res, err := t.query(ctx, p, q)
	if errors.Is(err, ErrIndexNotDefined) && t.config.IndexNotDefinedAsEmpty {
		t.logger.Warn("query ordered without index rule",
			"path", p.String(),
			"error", err,
		)
		return Result{}, nil
	}
	return res, err
}

func (t *Tree) query(ctx context.Context, p treepath.Path, q QuerySpec) (Result, error) {
	if q.OrderBy.Kind == OrderByValue || q.OrderBy.Kind == OrderByField {
		if err := t.requireIndex(ctx, p, q.OrderBy.indexName()); err != nil {
			return Result{}, err
		}
	}

	var set candidateSet
	switch {
	case p.IsRoot():
		items, err := t.bucketCandidates(ctx)
		if err != nil {
			return Result{}, err
		}
		set.items = items
	case p.IsBucket():
		items, err := t.recordCandidates(ctx, p.Bucket())
		if err != nil {
			return Result{}, err
		}
		set.items = items
	default:
		v, err := t.lookup(ctx, p)
		if err != nil {
			return Result{}, err
		}
		if q.IsZero() {
			return Single(v), nil
		}
		if !isContainer(v) {
			// A leaf has no children to filter or limit.
			if q.filtered() || q.LimitToFirst > 0 || q.LimitToLast > 0 {
				return Result{}, nil
			}
			return Single(v), nil
		}
		set = childCandidates(v)
	}

	if q.OrderBy.Kind == OrderNone {
		set.sortByKey()
		return Listing(set.entries()), nil
	}

	set.order(q)
	if err := set.filter(q); err != nil {
		return Result{}, err
	}
	set.limit(q)
	return Listing(set.entries()), nil
}

// lookup returns the value of a record or field path.
func (t *Tree) lookup(ctx context.Context, p treepath.Path) (value.Value, error) {
	id, _ := p.RecordID()
	rec, found, err := t.store.FindOne(ctx, p.Bucket(), id, p.Field())
	if err != nil {
		return value.Null(), storageError("find", err)
	}
	if !found {
		return value.Null(), fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return rec.Value, nil
}

// bucketCandidates returns one candidate per non-empty user bucket whose
// value maps record ids to record values.
func (t *Tree) bucketCandidates(ctx context.Context) ([]candidate, error) {
	buckets, err := t.userBuckets(ctx)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, bucket := range buckets {
		recs, err := t.store.FindMany(ctx, bucket, store.FindOptions{})
		if err != nil {
			return nil, storageError("find many", err)
		}
		if len(recs) == 0 {
			continue
		}
		m := make(map[string]value.Value, len(recs))
		for _, rec := range recs {
			m[rec.ID] = rec.Value
		}
		out = append(out, candidate{key: bucket, value: value.Mapping(m)})
	}
	return out, nil
}

// recordCandidates returns one candidate per record of bucket.
func (t *Tree) recordCandidates(ctx context.Context, bucket string) ([]candidate, error) {
	recs, err := t.store.FindMany(ctx, bucket, store.FindOptions{})
	if err != nil {
		return nil, storageError("find many", err)
	}
	out := make([]candidate, len(recs))
	for i, rec := range recs {
		out[i] = candidate{key: rec.ID, value: rec.Value}
	}
	return out, nil
}

// childCandidates returns the children of a record sub-value.
func childCandidates(v value.Value) candidateSet {
	switch v.Kind() {
	case value.KindMapping:
		entries := v.Entries()
		items := make([]candidate, 0, len(entries))
		for _, key := range v.Keys() {
			items = append(items, candidate{key: key, value: entries[key]})
		}
		return candidateSet{items: items}
	case value.KindSequence:
		elems := v.Items()
		items := make([]candidate, len(elems))
		for i, item := range elems {
			items[i] = candidate{key: strconv.Itoa(i), value: item}
		}
		return candidateSet{items: items, indexed: true}
	case value.KindNull, value.KindBool, value.KindNumber, value.KindText:
	}
	return candidateSet{}
}

func isContainer(v value.Value) bool {
	switch v.Kind() {
	case value.KindMapping, value.KindSequence:
		return true
	case value.KindNull, value.KindBool, value.KindNumber, value.KindText:
	}
	return false
}

// requireIndex checks that the index rule at p's scope permits name.
func (t *Tree) requireIndex(ctx context.Context, p treepath.Path, name string) error {
	rule, ok, err := t.GetIndex(ctx, p)
	if err != nil {
		return err
	}
	if !ok || !rule.Permits(name) {
		return &IndexNotDefinedError{Scope: p.Scope(), Field: name}
	}
	return nil
}

// keyValue is the value a candidate key is compared as: its index for
// sequence elements, otherwise its text.
func (s *candidateSet) keyValue(key string) value.Value {
	if s.indexed {
		if i, ok := value.Index(key); ok {
			return value.Number(float64(i))
		}
	}
	return value.Text(key)
}

func (s *candidateSet) compareKeys(a, b string) int {
	if s.indexed {
		return value.Compare(s.keyValue(a), s.keyValue(b))
	}
	return strings.Compare(a, b)
}

func (s *candidateSet) sortByKey() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.compareKeys(s.items[i].key, s.items[j].key) < 0
	})
}

// order resolves each candidate's sort key, drops candidates without the
// ordered field and sorts, breaking ties by key.
func (s *candidateSet) order(q QuerySpec) {
	switch q.OrderBy.Kind {
	case OrderByKey:
		for i := range s.items {
			s.items[i].sortKey = s.keyValue(s.items[i].key)
		}
	case OrderByValue:
		for i := range s.items {
			s.items[i].sortKey = s.items[i].value
		}
	case OrderByField:
		field := treepath.ParseLocator(q.OrderBy.Field).Segments()
		kept := s.items[:0]
		for _, c := range s.items {
			if fv, ok := c.value.Get(field); ok {
				c.sortKey = fv
				kept = append(kept, c)
			}
		}
		s.items = kept
	case OrderNone:
	}

	sort.SliceStable(s.items, func(i, j int) bool {
		if c := value.Compare(s.items[i].sortKey, s.items[j].sortKey); c != 0 {
			return c < 0
		}
		return s.compareKeys(s.items[i].key, s.items[j].key) < 0
	})
}

// keyBound converts a by-key bound into a comparable key value.
func (s *candidateSet) keyBound(b value.Value) (value.Value, error) {
	switch b.Kind() {
	case value.KindText:
		text, _ := b.AsText()
		if s.indexed {
			i, ok := value.Index(text)
			if !ok {
				return value.Null(), fmt.Errorf("%w: %q is not a sequence index", ErrInvalidFilterType, text)
			}
			return value.Number(float64(i)), nil
		}
		return b, nil
	case value.KindNumber:
		if s.indexed {
			return b, nil
		}
	case value.KindNull, value.KindBool, value.KindSequence, value.KindMapping:
	}
	return value.Null(), fmt.Errorf("%w: key bounds must be text, got %s", ErrInvalidFilterType, b.Kind())
}

// bounds returns q's filter bounds in the sort-key domain.
func (s *candidateSet) bounds(q QuerySpec) (start, end, equal *value.Value, err error) {
	conv := func(b *value.Value) (*value.Value, error) {
		if b == nil {
			return nil, nil
		}
		if q.OrderBy.Kind != OrderByKey {
			return b, nil
		}
		kb, err := s.keyBound(*b)
		if err != nil {
			return nil, err
		}
		return &kb, nil
	}
	if start, err = conv(q.StartAt); err != nil {
		return nil, nil, nil, err
	}
	if end, err = conv(q.EndAt); err != nil {
		return nil, nil, nil, err
	}
	if equal, err = conv(q.EqualTo); err != nil {
		return nil, nil, nil, err
	}
	return start, end, equal, nil
}

// filter keeps candidates inside the inclusive range or equal to EqualTo.
func (s *candidateSet) filter(q QuerySpec) error {
	start, end, equal, err := s.bounds(q)
	if err != nil {
		return err
	}
	kept := s.items[:0]
	for _, c := range s.items {
		if start != nil && value.Compare(c.sortKey, *start) < 0 {
			continue
		}
		if end != nil && value.Compare(c.sortKey, *end) > 0 {
			continue
		}
		if equal != nil && !value.Equal(c.sortKey, *equal) {
			continue
		}
		kept = append(kept, c)
	}
	s.items = kept
	return nil
}

// limit keeps the head or tail of the ordered candidates.
func (s *candidateSet) limit(q QuerySpec) {
	switch {
	case q.LimitToFirst > 0 && len(s.items) > q.LimitToFirst:
		s.items = s.items[:q.LimitToFirst]
	case q.LimitToLast > 0 && len(s.items) > q.LimitToLast:
		s.items = s.items[len(s.items)-q.LimitToLast:]
	}
}

func (s *candidateSet) entries() []Entry {
	out := make([]Entry, len(s.items))
	for i, c := range s.items {
		out[i] = Entry{Key: c.key, Value: c.value}
	}
	return out
}
