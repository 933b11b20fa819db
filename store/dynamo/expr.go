package dynamo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

// Attribute names on document items.
const (
	attrBucket    = "bucket"
	attrID        = "id"
	attrValue     = "val"
	attrVersion   = "version"
	attrCreatedAt = "created_at"
	attrUpdatedAt = "updated_at"
)

// documentKey returns the primary key of a record item.
func documentKey(bucket, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrBucket: &types.AttributeValueMemberS{Value: bucket},
		attrID:     &types.AttributeValueMemberS{Value: id},
	}
}

// catalogKey returns the primary key of a catalog item.
func catalogKey(bucket string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrBucket: &types.AttributeValueMemberS{Value: bucket},
	}
}

// documentPath renders the expression path of loc inside the value
// attribute, registering one name placeholder per segment.
// The zero locator renders "#val".
func documentPath(loc treepath.Locator, names map[string]string) string {
	names["#val"] = attrValue
	parts := []string{"#val"}
	for i, seg := range loc.Segments() {
		placeholder := fmt.Sprintf("#f%d", i)
		names[placeholder] = seg
		parts = append(parts, placeholder)
	}
	return strings.Join(parts, ".")
}

// baseNames returns the name placeholders shared by all record writes.
func baseNames() map[string]string {
	return map[string]string{
		"#id":         attrID,
		"#version":    attrVersion,
		"#created_at": attrCreatedAt,
		"#updated_at": attrUpdatedAt,
	}
}

// baseValues returns the value placeholders shared by all record writes.
func baseValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		":one": &types.AttributeValueMemberN{Value: "1"},
	}
}

// setExpression returns the SET/ADD update expression storing :v at path
// and maintaining the managed fields.
func setExpression(path string) string {
	return "SET " + path + " = :v, #updated_at = :now, #created_at = if_not_exists(#created_at, :now) ADD #version :one"
}

// removeExpression returns the REMOVE update expression for path.
func removeExpression(path string) string {
	return "REMOVE " + path + " SET #updated_at = :now ADD #version :one"
}

// encodeValue converts a tree value into an attribute value.
func encodeValue(v value.Value) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(v.Any())
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return av, nil
}

// decodeValue converts an attribute value into a tree value.
// A nil attribute decodes to null.
func decodeValue(av types.AttributeValue) (value.Value, error) {
	if av == nil {
		return value.Null(), nil
	}
	var raw any
	if err := attributevalue.Unmarshal(av, &raw); err != nil {
		return value.Value{}, fmt.Errorf("unmarshal value: %w", err)
	}
	return value.FromAny(raw)
}

// itemVersion returns the version attribute of an item, 0 when absent.
func itemVersion(item map[string]types.AttributeValue) int64 {
	if v, ok := item[attrVersion].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

// itemString returns a string attribute of an item.
func itemString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// isConditionFailed reports whether err is a failed condition expression.
func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// isInvalidDocumentPath reports whether err is DynamoDB rejecting an update
// whose document path does not resolve (missing map, list element).
func isInvalidDocumentPath(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(apiErr.ErrorMessage(), "document path")
}

// chunk splits requests into batches of at most size.
func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
