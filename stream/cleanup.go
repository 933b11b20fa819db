// Package stream provides DynamoDB Streams handlers for asynchronous tree
// maintenance.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/tree"
)

// Cleaner is the part of store.Adapter the cleanup handler needs.
type Cleaner interface {
	FindMany(ctx context.Context, bucket string, opts store.FindOptions) ([]store.Record, error)
	DropBucket(ctx context.Context, bucket string) error
}

// Handler processes document table stream events and drops buckets left
// without records.
type Handler struct {
	cleaner Cleaner
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(c Cleaner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cleaner: c,
		logger:  logger,
	}
}

// HandleBucketCleanup checks every bucket that lost a record in event and
// drops the ones that are now empty. It is meant to be used as an AWS Lambda
// handler and pairs with tree.Config.SyncBucketCleanup set to false.
func (h *Handler) HandleBucketCleanup(ctx context.Context, event events.DynamoDBEvent) error {
	for _, bucket := range removedBuckets(event.Records) {
		if err := h.cleanBucket(ctx, bucket); err != nil {
			h.logger.Error("failed to clean bucket",
				"bucket", bucket,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// cleanBucket drops bucket when it holds no records.
func (h *Handler) cleanBucket(ctx context.Context, bucket string) error {
	recs, err := h.cleaner.FindMany(ctx, bucket, store.FindOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("find records: %w", err)
	}
	if len(recs) > 0 {
		return nil
	}
	if err := h.cleaner.DropBucket(ctx, bucket); err != nil {
		return fmt.Errorf("drop bucket: %w", err)
	}
	h.logger.Info("dropped empty bucket", "bucket", bucket)
	return nil
}

// removedBuckets returns the distinct user buckets named by REMOVE records,
// in first-seen order.
func removedBuckets(records []events.DynamoDBEventRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, record := range records {
		if record.EventName != "REMOVE" {
			continue
		}
		bucket := getStringAttr(record.Change.Keys, "bucket")
		if bucket == "" || tree.IsReserved(bucket) || seen[bucket] {
			continue
		}
		seen[bucket] = true
		out = append(out, bucket)
	}
	return out
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
