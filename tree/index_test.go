package tree_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/arbor/tree"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

func TestSetIndex_DefaultsToValue(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)

	rule, err := tr.SetIndex(ctx, treepath.Parse("/"), value.Null())
	if err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	if rule.Scope != treepath.RootScope {
		t.Errorf("expected root scope, got %q", rule.Scope)
	}
	if !rule.Permits(tree.IndexValue) {
		t.Errorf("expected default rule to permit %s, got %s", tree.IndexValue, rule.IndexOn)
	}

	got, ok, err := tr.GetIndex(ctx, treepath.Parse(""))
	if err != nil || !ok {
		t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
	}
	if !value.Equal(got.IndexOn, value.Text(tree.IndexValue)) {
		t.Errorf("expected stored %q, got %s", tree.IndexValue, got.IndexOn)
	}
}

func TestSetIndex_Upserts(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	p := treepath.Parse("/users.json")

	if _, err := tr.SetIndex(ctx, p, value.Text("age")); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	if _, err := tr.SetIndex(ctx, p, value.Text("name")); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	rule, ok, err := tr.GetIndex(ctx, treepath.Parse("/users"))
	if err != nil || !ok {
		t.Fatalf("GetIndex: ok=%v err=%v", ok, err)
	}
	if rule.Permits("age") || !rule.Permits("name") {
		t.Errorf("expected the second rule to replace the first, got %s", rule.IndexOn)
	}
}

func TestDeleteIndex(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t)
	p := treepath.Parse("/users")

	if err := tr.DeleteIndex(ctx, p); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected ErrNotFound before set, got %v", err)
	}
	if _, err := tr.SetIndex(ctx, p, value.Text("age")); err != nil {
		t.Fatalf("SetIndex failed: %v", err)
	}
	if err := tr.DeleteIndex(ctx, p); err != nil {
		t.Fatalf("DeleteIndex failed: %v", err)
	}
	if _, ok, _ := tr.GetIndex(ctx, p); ok {
		t.Error("expected rule to be gone")
	}
	if err := tr.DeleteIndex(ctx, p); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetIndex_Missing(t *testing.T) {
	tr, _ := newTree(t)
	_, ok, err := tr.GetIndex(context.Background(), treepath.Parse("/nothing"))
	if err != nil {
		t.Fatalf("GetIndex failed: %v", err)
	}
	if ok {
		t.Error("expected no rule")
	}
}

func TestIndexRule_Permits(t *testing.T) {
	tests := []struct {
		name    string
		indexOn string
		field   string
		want    bool
	}{
		{"text match", `"age"`, "age", true},
		{"text mismatch", `"age"`, "name", false},
		{"sequence match", `["name","age"]`, "age", true},
		{"sequence ignores non-text", `[1,"x"]`, "1", false},
		{"mapping key", `{"age":true}`, "age", true},
		{"mapping missing", `{"age":true}`, "name", false},
		{"value marker", `".value"`, tree.IndexValue, true},
		{"key marker", `[".key"]`, tree.IndexKey, true},
		{"null", `null`, "age", false},
		{"number", `3`, "3", false},
		{"bool", `true`, "true", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tree.IndexRule{IndexOn: jsonValue(t, tt.indexOn)}
			if got := rule.Permits(tt.field); got != tt.want {
				t.Errorf("Permits(%q) on %s: expected %v, got %v", tt.field, tt.indexOn, tt.want, got)
			}
		})
	}
}
