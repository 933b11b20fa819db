package tree

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// IndexRule declares what queries at a scope may order by.
type IndexRule struct {
	// Scope is the path the rule applies to, see treepath.Path.Scope.
	Scope string

	// IndexOn is the stored declaration: a field name or marker, a sequence
	// of them, or a mapping keyed by them.
	IndexOn value.Value
}

// Permits reports whether the rule allows ordering by name, a field name or
// one of IndexKey and IndexValue.
func (r IndexRule) Permits(name string) bool {
	switch r.IndexOn.Kind() {
	case value.KindText:
		s, _ := r.IndexOn.AsText()
		return s == name
	case value.KindSequence:
		for _, item := range r.IndexOn.Items() {
			if s, ok := item.AsText(); ok && s == name {
				return true
			}
		}
	case value.KindMapping:
		_, ok := r.IndexOn.Field(name)
		return ok
	case value.KindNull, value.KindBool, value.KindNumber:
	}
	return false
}

// SetIndex stores the index rule for p's scope, replacing any previous
// rule. A null spec declares ordering by value.
func (t *Tree) SetIndex(ctx context.Context, p treepath.Path, spec value.Value) (IndexRule, error) {
	if err := checkPath(p); err != nil {
		return IndexRule{}, err
	}
	if spec.IsNull() {
		spec = value.Text(IndexValue)
	}
	scope := p.Scope()

	unlock := t.lockRecord(rulesBucket, scope)
	defer unlock()

	res, err := t.store.UpsertFieldSet(ctx, rulesBucket, scope, treepath.Locator{}, spec)
	if err != nil {
		return IndexRule{}, storageError("set index", err)
	}
	if err := t.verify(res.Matched == 1 || res.Created, "index %q: upsert matched %d records", scope, res.Matched); err != nil {
		return IndexRule{}, err
	}
	t.logger.Info("index rule set", "scope", scope, "indexOn", spec.String())
	return IndexRule{Scope: scope, IndexOn: spec}, nil
}

// DeleteIndex removes the index rule for p's scope. Returns ErrNotFound if
// none is stored.
func (t *Tree) DeleteIndex(ctx context.Context, p treepath.Path) error {
	if err := checkPath(p); err != nil {
		return err
	}
	scope := p.Scope()

	unlock := t.lockRecord(rulesBucket, scope)
	defer unlock()

	deleted, err := t.store.DeleteOne(ctx, rulesBucket, scope)
	if err != nil {
		return storageError("delete index", err)
	}
	if !deleted {
		return fmt.Errorf("%w: no index at %q", ErrNotFound, scope)
	}
	t.logger.Info("index rule deleted", "scope", scope)
	return nil
}

// GetIndex returns the index rule for p's scope.
func (t *Tree) GetIndex(ctx context.Context, p treepath.Path) (IndexRule, bool, error) {
	if err := checkPath(p); err != nil {
		return IndexRule{}, false, err
	}
	scope := p.Scope()
	rec, found, err := t.store.FindOne(ctx, rulesBucket, scope, treepath.Locator{})
	if err != nil {
		return IndexRule{}, false, storageError("get index", err)
	}
	if !found {
		return IndexRule{}, false, nil
	}
	return IndexRule{Scope: scope, IndexOn: rec.Value}, true, nil
}
