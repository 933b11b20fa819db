package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/stream"
	"github.com/jacentio/arbor/value"
)

// fakeCleaner holds record counts per bucket and records drops.
type fakeCleaner struct {
	counts  map[string]int
	dropped []string
	findErr error
	dropErr error
}

func (f *fakeCleaner) FindMany(ctx context.Context, bucket string, opts store.FindOptions) ([]store.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	n := f.counts[bucket]
	if opts.Limit > 0 && n > opts.Limit {
		n = opts.Limit
	}
	recs := make([]store.Record, n)
	for i := range recs {
		recs[i] = store.Record{ID: "r", Value: value.Number(float64(i))}
	}
	return recs, nil
}

func (f *fakeCleaner) DropBucket(ctx context.Context, bucket string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = append(f.dropped, bucket)
	return nil
}

func removeEvent(buckets ...string) events.DynamoDBEvent {
	var event events.DynamoDBEvent
	for _, b := range buckets {
		event.Records = append(event.Records, events.DynamoDBEventRecord{
			EventID:   "evt-" + b,
			EventName: "REMOVE",
			Change: events.DynamoDBStreamRecord{
				Keys: map[string]events.DynamoDBAttributeValue{
					"bucket": events.NewStringAttribute(b),
					"id":     events.NewStringAttribute("gone"),
				},
			},
		})
	}
	return event
}

func TestNewHandler(t *testing.T) {
	// Test with nil cleaner and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleBucketCleanup_DropsEmptyBuckets(t *testing.T) {
	c := &fakeCleaner{counts: map[string]int{"users": 2}}
	h := stream.NewHandler(c, nil)

	if err := h.HandleBucketCleanup(context.Background(), removeEvent("users", "posts", "posts")); err != nil {
		t.Fatalf("HandleBucketCleanup failed: %v", err)
	}
	if len(c.dropped) != 1 || c.dropped[0] != "posts" {
		t.Errorf("expected only posts dropped, got %v", c.dropped)
	}
}

func TestHandleBucketCleanup_IgnoresOtherEvents(t *testing.T) {
	c := &fakeCleaner{}
	h := stream.NewHandler(c, nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "INSERT"},
		{EventName: "MODIFY"},
	}}
	if err := h.HandleBucketCleanup(context.Background(), event); err != nil {
		t.Fatalf("HandleBucketCleanup failed: %v", err)
	}
	if len(c.dropped) != 0 {
		t.Errorf("expected no drops, got %v", c.dropped)
	}
}

func TestHandleBucketCleanup_ReturnsErrors(t *testing.T) {
	cause := errors.New("throttled")
	tests := []struct {
		name string
		c    *fakeCleaner
	}{
		{"find", &fakeCleaner{findErr: cause}},
		{"drop", &fakeCleaner{dropErr: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := stream.NewHandler(tt.c, nil)
			err := h.HandleBucketCleanup(context.Background(), removeEvent("users"))
			if !errors.Is(err, cause) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
		})
	}
}

// Ensure store.Adapter satisfies Cleaner.
var _ stream.Cleaner = store.Adapter(nil)
