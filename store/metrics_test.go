package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/store/boltstore"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

func TestInstrument_CountsOperations(t *testing.T) {
	ctx := context.Background()
	inner, err := boltstore.Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reg := prometheus.NewRegistry()
	a := store.Instrument(inner, reg)
	t.Cleanup(func() { _ = a.Close() })

	if err := a.InsertOne(ctx, "b", store.Record{ID: "r", Value: value.Number(1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := a.InsertOne(ctx, "b", store.Record{ID: "r", Value: value.Number(1)}); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if _, _, err := a.FindOne(ctx, "b", "r", treepath.Locator{}); err != nil {
		t.Fatalf("find: %v", err)
	}

	m := store.NewMetrics(reg)
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("insert_one", "ok")); got != 1 {
		t.Errorf("expected 1 successful insert, got %v", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("insert_one", "error")); got != 1 {
		t.Errorf("expected 1 failed insert, got %v", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("find_one", "ok")); got != 1 {
		t.Errorf("expected 1 find, got %v", got)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m := store.NewMetrics(nil)
	if m.Operations == nil || m.Duration == nil {
		t.Fatal("expected collectors without a registerer")
	}
}
