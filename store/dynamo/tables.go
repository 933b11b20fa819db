package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableWait bounds how long CreateTables waits for a table to become active.
const tableWait = 2 * time.Minute

// CreateTables creates the documents and catalog tables if they do not exist
// and waits for both to become active. The documents table is created with a
// keys-only stream for the bucket cleanup handler.
func (a *Adapter) CreateTables(ctx context.Context) error {
	inputs := []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(a.config.DocumentTable),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attrBucket), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(attrBucket), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
			StreamSpecification: &types.StreamSpecification{
				StreamEnabled:  aws.Bool(true),
				StreamViewType: types.StreamViewTypeKeysOnly,
			},
		},
		{
			TableName: aws.String(a.config.CatalogTable),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attrBucket), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(attrBucket), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	for _, input := range inputs {
		_, err := a.client.CreateTable(ctx, input)
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", aws.ToString(input.TableName), err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(a.client)
	for _, input := range inputs {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: input.TableName,
		}, tableWait); err != nil {
			return fmt.Errorf("wait for table %s: %w", aws.ToString(input.TableName), err)
		}
	}
	return nil
}

// DeleteTables deletes both tables. Missing tables are ignored.
func (a *Adapter) DeleteTables(ctx context.Context) error {
	var errs []error
	for _, name := range []string{a.config.DocumentTable, a.config.CatalogTable} {
		_, err := a.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(name),
		})
		var missing *types.ResourceNotFoundException
		if err != nil && !errors.As(err, &missing) {
			errs = append(errs, fmt.Errorf("delete table %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
