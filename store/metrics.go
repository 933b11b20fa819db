package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// Metrics holds the collectors exported by an instrumented adapter.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the adapter collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store adapter calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbor",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store adapter call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		return m
	}
	m.Operations = register(reg, m.Operations)
	m.Duration = register(reg, m.Duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Instrument wraps a so that every call is counted and timed.
func Instrument(a Adapter, reg prometheus.Registerer) Adapter {
	return &instrumented{next: a, metrics: NewMetrics(reg)}
}

type instrumented struct {
	next    Adapter
	metrics *Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.metrics.Operations.WithLabelValues(op, outcome).Inc()
	i.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) ExistsField(ctx context.Context, bucket, id string, loc treepath.Locator) (ok bool, err error) {
	defer func(start time.Time) { i.observe("exists_field", start, err) }(time.Now())
	return i.next.ExistsField(ctx, bucket, id, loc)
}

func (i *instrumented) FindOne(ctx context.Context, bucket, id string, loc treepath.Locator) (rec Record, found bool, err error) {
	defer func(start time.Time) { i.observe("find_one", start, err) }(time.Now())
	return i.next.FindOne(ctx, bucket, id, loc)
}

func (i *instrumented) FindMany(ctx context.Context, bucket string, opts FindOptions) (recs []Record, err error) {
	defer func(start time.Time) { i.observe("find_many", start, err) }(time.Now())
	return i.next.FindMany(ctx, bucket, opts)
}

func (i *instrumented) UpsertFieldSet(ctx context.Context, bucket, id string, loc treepath.Locator, v value.Value) (res UpdateResult, err error) {
	defer func(start time.Time) { i.observe("upsert_field_set", start, err) }(time.Now())
	return i.next.UpsertFieldSet(ctx, bucket, id, loc, v)
}

func (i *instrumented) UnsetField(ctx context.Context, bucket, id string, loc treepath.Locator) (res UpdateResult, err error) {
	defer func(start time.Time) { i.observe("unset_field", start, err) }(time.Now())
	return i.next.UnsetField(ctx, bucket, id, loc)
}

func (i *instrumented) InsertOne(ctx context.Context, bucket string, rec Record) (err error) {
	defer func(start time.Time) { i.observe("insert_one", start, err) }(time.Now())
	return i.next.InsertOne(ctx, bucket, rec)
}

func (i *instrumented) InsertMany(ctx context.Context, bucket string, recs []Record) (n int, err error) {
	defer func(start time.Time) { i.observe("insert_many", start, err) }(time.Now())
	return i.next.InsertMany(ctx, bucket, recs)
}

func (i *instrumented) DeleteOne(ctx context.Context, bucket, id string) (ok bool, err error) {
	defer func(start time.Time) { i.observe("delete_one", start, err) }(time.Now())
	return i.next.DeleteOne(ctx, bucket, id)
}

func (i *instrumented) DropBucket(ctx context.Context, bucket string) (err error) {
	defer func(start time.Time) { i.observe("drop_bucket", start, err) }(time.Now())
	return i.next.DropBucket(ctx, bucket)
}

func (i *instrumented) ListBuckets(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { i.observe("list_buckets", start, err) }(time.Now())
	return i.next.ListBuckets(ctx)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
