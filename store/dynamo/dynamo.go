// Package dynamo implements store.Adapter on DynamoDB.
//
// Records live in a single documents table keyed by (bucket, id); the
// record value is stored as a native DynamoDB document in the "val"
// attribute, so nested field writes become UpdateItem document-path
// expressions. A separate catalog table lists the live buckets.
//
// Every record item also carries a "version" attribute. Writes that cannot
// be expressed as a single document-path update (missing intermediate maps,
// list indices) fall back to reading the record and writing it back with a
// condition on the version they read, retrying on conflict.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

// Adapter is a DynamoDB-backed store.Adapter.
type Adapter struct {
	client *dynamodb.Client
	config Config
}

var _ store.Adapter = (*Adapter)(nil)

// New creates a new Adapter.
func New(client *dynamodb.Client, config Config) *Adapter {
	config.validate()
	return &Adapter{
		client: client,
		config: config,
	}
}

// Config returns the effective configuration.
func (a *Adapter) Config() Config { return a.config }

func (a *Adapter) ExistsField(ctx context.Context, bucket, id string, loc treepath.Locator) (bool, error) {
	_, found, err := a.FindOne(ctx, bucket, id, loc)
	return found, err
}

func (a *Adapter) FindOne(ctx context.Context, bucket, id string, loc treepath.Locator) (store.Record, bool, error) {
	item, err := a.getItem(ctx, bucket, id)
	if err != nil || item == nil {
		return store.Record{}, false, err
	}
	v, err := decodeValue(item[attrValue])
	if err != nil {
		return store.Record{}, false, fmt.Errorf("%s/%s: %w", bucket, id, err)
	}
	projected, ok := v.Get(loc.Segments())
	if !ok {
		return store.Record{}, false, nil
	}
	return store.Record{ID: id, Value: projected}, true, nil
}

func (a *Adapter) FindMany(ctx context.Context, bucket string, opts store.FindOptions) ([]store.Record, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(a.config.DocumentTable),
		KeyConditionExpression:   aws.String("#bucket = :bucket"),
		ExpressionAttributeNames: map[string]string{"#bucket": attrBucket},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bucket": &types.AttributeValueMemberS{Value: bucket},
		},
		ConsistentRead: aws.Bool(true),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(opts.Limit))
	}

	var recs []store.Record
	paginator := dynamodb.NewQueryPaginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			id := itemString(raw, attrID)
			v, err := decodeValue(raw[attrValue])
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", bucket, id, err)
			}
			recs = append(recs, store.Record{ID: id, Value: v})
			if opts.Limit > 0 && len(recs) >= opts.Limit {
				return recs, nil
			}
		}
	}
	return recs, nil
}

func (a *Adapter) UpsertFieldSet(ctx context.Context, bucket, id string, loc treepath.Locator, v value.Value) (store.UpdateResult, error) {
	segs := loc.Segments()
	mutate := func(cur value.Value, _ bool) (value.Value, bool) {
		return cur.Set(segs, v), true
	}
	if loc.IsZero() {
		return a.putValue(ctx, bucket, id, v)
	}
	if hasIndexSegment(segs) {
		return a.rewrite(ctx, bucket, id, mutate)
	}

	av, err := encodeValue(v)
	if err != nil {
		return store.UpdateResult{}, err
	}
	names := baseNames()
	path := documentPath(loc, names)
	values := baseValues(time.Now())
	values[":v"] = av

	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.config.DocumentTable),
		Key:                       documentKey(bucket, id),
		UpdateExpression:          aws.String(setExpression(path)),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	switch {
	case err == nil:
		old, err := decodeValue(out.Attributes[attrValue])
		if err != nil {
			return store.UpdateResult{}, err
		}
		res := store.UpdateResult{Matched: 1}
		if prev, had := old.Get(segs); !had || !value.Equal(prev, v) {
			res.Modified = 1
		}
		return res, nil
	case isConditionFailed(err), isInvalidDocumentPath(err):
		// Record missing or an intermediate map is absent.
		return a.rewrite(ctx, bucket, id, mutate)
	}
	return store.UpdateResult{}, err
}

func (a *Adapter) UnsetField(ctx context.Context, bucket, id string, loc treepath.Locator) (store.UpdateResult, error) {
	segs := loc.Segments()
	mutate := func(cur value.Value, exists bool) (value.Value, bool) {
		if !exists {
			return cur, false
		}
		return cur.Unset(segs)
	}
	if loc.IsZero() || hasIndexSegment(segs) {
		return a.rewrite(ctx, bucket, id, mutate)
	}

	names := baseNames()
	delete(names, "#id")
	delete(names, "#created_at")
	path := documentPath(loc, names)
	_, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.config.DocumentTable),
		Key:                       documentKey(bucket, id),
		UpdateExpression:          aws.String(removeExpression(path)),
		ConditionExpression:       aws.String("attribute_exists(" + path + ")"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: baseValues(time.Now()),
	})
	switch {
	case err == nil:
		return store.UpdateResult{Matched: 1, Modified: 1}, nil
	case isConditionFailed(err):
		item, err := a.getItem(ctx, bucket, id)
		if err != nil {
			return store.UpdateResult{}, err
		}
		if item == nil {
			return store.UpdateResult{}, nil
		}
		return store.UpdateResult{Matched: 1}, nil
	case isInvalidDocumentPath(err):
		return a.rewrite(ctx, bucket, id, mutate)
	}
	return store.UpdateResult{}, err
}

func (a *Adapter) InsertOne(ctx context.Context, bucket string, rec store.Record) error {
	item, err := newItem(bucket, rec, time.Now())
	if err != nil {
		return err
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(a.config.DocumentTable),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%s/%s: %w", bucket, rec.ID, store.ErrDuplicateID)
	}
	if err != nil {
		return err
	}
	return a.ensureCatalog(ctx, bucket)
}

// InsertMany writes recs with BatchWriteItem. Unlike InsertOne it does not
// detect id collisions; an existing record with the same id is replaced.
func (a *Adapter) InsertMany(ctx context.Context, bucket string, recs []store.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := time.Now()
	requests := make([]types.WriteRequest, 0, len(recs))
	for _, rec := range recs {
		item, err := newItem(bucket, rec, now)
		if err != nil {
			return 0, err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	written := 0
	for _, batch := range chunk(requests, batchSize) {
		if err := a.batchWrite(ctx, batch); err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, a.ensureCatalog(ctx, bucket)
}

func (a *Adapter) DeleteOne(ctx context.Context, bucket, id string) (bool, error) {
	out, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(a.config.DocumentTable),
		Key:          documentKey(bucket, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}

func (a *Adapter) DropBucket(ctx context.Context, bucket string) error {
	var requests []types.WriteRequest
	paginator := dynamodb.NewQueryPaginator(a.client, &dynamodb.QueryInput{
		TableName:                aws.String(a.config.DocumentTable),
		KeyConditionExpression:   aws.String("#bucket = :bucket"),
		ProjectionExpression:     aws.String("#bucket, #id"),
		ExpressionAttributeNames: map[string]string{"#bucket": attrBucket, "#id": attrID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bucket": &types.AttributeValueMemberS{Value: bucket},
		},
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: documentKey(bucket, itemString(raw, attrID))},
			})
		}
	}
	for _, batch := range chunk(requests, batchSize) {
		if err := a.batchWrite(ctx, batch); err != nil {
			return fmt.Errorf("drop %s: %w", bucket, err)
		}
	}
	return a.RemoveFromCatalog(ctx, bucket)
}

// RemoveFromCatalog deletes the catalog entry of bucket without touching
// its records.
func (a *Adapter) RemoveFromCatalog(ctx context.Context, bucket string) error {
	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.config.CatalogTable),
		Key:       catalogKey(bucket),
	})
	return err
}

func (a *Adapter) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	paginator := dynamodb.NewScanPaginator(a.client, &dynamodb.ScanInput{
		TableName:      aws.String(a.config.CatalogTable),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			if name := itemString(raw, attrBucket); name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op; the DynamoDB client holds no resources that need
// releasing.
func (a *Adapter) Close() error { return nil }

// getItem reads a record item with strong consistency. Returns nil, nil when
// the record does not exist.
func (a *Adapter) getItem(ctx context.Context, bucket, id string) (map[string]types.AttributeValue, error) {
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.config.DocumentTable),
		Key:            documentKey(bucket, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// putValue replaces a record's whole value, creating the record if needed.
func (a *Adapter) putValue(ctx context.Context, bucket, id string, v value.Value) (store.UpdateResult, error) {
	av, err := encodeValue(v)
	if err != nil {
		return store.UpdateResult{}, err
	}
	names := baseNames()
	delete(names, "#id")
	path := documentPath(treepath.Locator{}, names)
	values := baseValues(time.Now())
	values[":v"] = av

	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.config.DocumentTable),
		Key:                       documentKey(bucket, id),
		UpdateExpression:          aws.String(setExpression(path)),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		return store.UpdateResult{}, err
	}
	if len(out.Attributes) == 0 {
		return store.UpdateResult{Modified: 1, Created: true}, a.ensureCatalog(ctx, bucket)
	}
	old, err := decodeValue(out.Attributes[attrValue])
	if err != nil {
		return store.UpdateResult{}, err
	}
	res := store.UpdateResult{Matched: 1}
	if !value.Equal(old, v) {
		res.Modified = 1
	}
	return res, nil
}

// mutation computes a record's new value from its current one. exists is
// false when the record is missing; write is false when nothing changes.
type mutation func(cur value.Value, exists bool) (updated value.Value, write bool)

// rewrite applies fn with optimistic locking on the version attribute.
func (a *Adapter) rewrite(ctx context.Context, bucket, id string, fn mutation) (store.UpdateResult, error) {
	for attempt := 0; attempt < a.config.MaxRetries; attempt++ {
		item, err := a.getItem(ctx, bucket, id)
		if err != nil {
			return store.UpdateResult{}, err
		}

		if item == nil {
			updated, write := fn(value.Null(), false)
			if !write {
				return store.UpdateResult{}, nil
			}
			err := a.InsertOne(ctx, bucket, store.Record{ID: id, Value: updated})
			if isDuplicate(err) {
				continue
			}
			if err != nil {
				return store.UpdateResult{}, err
			}
			return store.UpdateResult{Modified: 1, Created: true}, nil
		}

		cur, err := decodeValue(item[attrValue])
		if err != nil {
			return store.UpdateResult{}, err
		}
		updated, write := fn(cur, true)
		if !write {
			return store.UpdateResult{Matched: 1}, nil
		}
		err = a.writeVersioned(ctx, bucket, id, updated, itemVersion(item))
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return store.UpdateResult{}, err
		}
		res := store.UpdateResult{Matched: 1}
		if !value.Equal(cur, updated) {
			res.Modified = 1
		}
		return res, nil
	}
	return store.UpdateResult{}, fmt.Errorf("%s/%s: %w", bucket, id, store.ErrConflict)
}

// writeVersioned replaces the record value if its version is still expected.
func (a *Adapter) writeVersioned(ctx context.Context, bucket, id string, v value.Value, expected int64) error {
	av, err := encodeValue(v)
	if err != nil {
		return err
	}
	names := baseNames()
	delete(names, "#id")
	path := documentPath(treepath.Locator{}, names)
	values := baseValues(time.Now())
	values[":v"] = av

	cond := "attribute_not_exists(#version)"
	if expected > 0 {
		cond = "#version = :expected"
		values[":expected"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)}
	}

	_, err = a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.config.DocumentTable),
		Key:                       documentKey(bucket, id),
		UpdateExpression:          aws.String(setExpression(path)),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// batchWrite sends one BatchWriteItem request, resubmitting unprocessed
// items with a linear backoff.
func (a *Adapter) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{a.config.DocumentTable: requests}
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		out, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("batch write: unprocessed items remain: %w", store.ErrConflict)
}

// ensureCatalog records bucket in the catalog table if it is not listed yet.
func (a *Adapter) ensureCatalog(ctx context.Context, bucket string) error {
	item := catalogKey(bucket)
	item[attrCreatedAt] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}
	_, err := a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(a.config.CatalogTable),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#bucket)"),
		ExpressionAttributeNames: map[string]string{"#bucket": attrBucket},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// newItem builds a fresh record item at version 1.
func newItem(bucket string, rec store.Record, now time.Time) (map[string]types.AttributeValue, error) {
	av, err := encodeValue(rec.Value)
	if err != nil {
		return nil, err
	}
	ts := now.UTC().Format(time.RFC3339)
	item := documentKey(bucket, rec.ID)
	item[attrValue] = av
	item[attrVersion] = &types.AttributeValueMemberN{Value: "1"}
	item[attrCreatedAt] = &types.AttributeValueMemberS{Value: ts}
	item[attrUpdatedAt] = &types.AttributeValueMemberS{Value: ts}
	return item, nil
}

// hasIndexSegment reports whether any segment could address a list element,
// which document-path expressions cannot express without knowing the shape.
func hasIndexSegment(segs []string) bool {
	for _, s := range segs {
		if _, ok := value.Index(s); ok {
			return true
		}
	}
	return false
}

func isDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicateID)
}
