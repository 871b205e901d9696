package ddbtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// WaitInterval is the delay between table readiness polls.
	WaitInterval = time.Second
	// WaitAttempts bounds the readiness polling of CreateTestTable.
	WaitAttempts = 200
)

// CreateTestTable creates a table and blocks until it is usable. A nil or
// empty TableName is replaced with UniqueTableName(); BillingMode defaults
// to on-demand. The caller's input is never modified. Returns the name of
// the created table.
func CreateTestTable(ctx context.Context, api TableAPI, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (string, error) {
	req := *in
	if aws.ToString(req.TableName) == "" {
		req.TableName = aws.String(UniqueTableName())
	}

	if req.BillingMode == "" {
		req.BillingMode = types.BillingModePayPerRequest
	}

	name := aws.ToString(req.TableName)

	log.Printf("creating test table %s", name)

	_, err := api.CreateTable(ctx, &req, optFns...)
	if err != nil {
		return "", fmt.Errorf("creating table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(api, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = WaitInterval
		o.MaxDelay = WaitInterval
	})

	describe := &dynamodb.DescribeTableInput{TableName: req.TableName}

	err = waiter.Wait(ctx, describe, WaitAttempts*WaitInterval)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWaitTimeout, name, err)
	}

	return name, nil
}

// DeleteTestTable drops a table created by CreateTestTable.
func DeleteTestTable(ctx context.Context, api TableAPI, name string, optFns ...func(*dynamodb.Options)) error {
	log.Printf("deleting test table %s", name)

	_, err := api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)}, optFns...)
	if err != nil {
		return fmt.Errorf("deleting table %s: %w", name, err)
	}

	return nil
}

// WithTable creates a table, hands its name to fn and deletes it when fn
// returns. The delete is attempted on every exit path, a panicking fn
// included; fn's error and the cleanup error are combined with errors.Join,
// so neither masks the other.
func WithTable(ctx context.Context, api TableAPI, in *dynamodb.CreateTableInput, fn func(ctx context.Context, table string) error, optFns ...func(*dynamodb.Options)) (err error) {
	name, err := CreateTestTable(ctx, api, in, optFns...)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, DeleteTestTable(ctx, api, name, optFns...))
	}()

	return fn(ctx, name)
}

// NewTestTable creates a table for the lifetime of the test and registers
// its deletion as a test cleanup.
func NewTestTable(tb testing.TB, ctx context.Context, api TableAPI, in *dynamodb.CreateTableInput) string {
	tb.Helper()

	name, err := CreateTestTable(ctx, api, in)
	if err != nil {
		tb.Fatalf("creating test table: %v", err)
	}

	tb.Cleanup(func() {
		if err := DeleteTestTable(context.Background(), api, name); err != nil {
			tb.Errorf("cleanup: %v", err)
		}
	})

	return name
}

// PruneTestTables deletes every table whose name carries TablePrefix and
// returns how many were dropped. Tables leak when a test run dies before
// its cleanups; sweeping them keeps shared clusters usable.
func PruneTestTables(ctx context.Context, api CleanupAPI, optFns ...func(*dynamodb.Options)) (int, error) {
	names, err := ListAllTables(ctx, api, 0, optFns...)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, name := range names {
		if !IsTestTable(name) {
			continue
		}

		_, err := api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)}, optFns...)
		if err != nil {
			return deleted, fmt.Errorf("deleting table %s: %w", name, err)
		}

		deleted++
	}

	return deleted, nil
}

// TableOption adjusts a CreateTableInput produced by NewCreateTableInput.
type TableOption func(*dynamodb.CreateTableInput)

// NewCreateTableInput assembles a CreateTableInput for a test table. With no
// options it describes an on-demand table with a single string hash key "p".
// Pass an empty name to let CreateTestTable pick a unique one.
func NewCreateTableInput(name string, opts ...TableOption) *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		BillingMode: types.BillingModePayPerRequest,
	}

	if name != "" {
		in.TableName = aws.String(name)
	}

	for _, opt := range opts {
		opt(in)
	}

	if len(in.KeySchema) == 0 {
		WithHashKey("p", types.ScalarAttributeTypeS)(in)
	}

	return in
}

// WithHashKey sets the partition key.
func WithHashKey(name string, attrType types.ScalarAttributeType) TableOption {
	return func(in *dynamodb.CreateTableInput) {
		in.KeySchema = append([]types.KeySchemaElement{{
			AttributeName: aws.String(name),
			KeyType:       types.KeyTypeHash,
		}}, in.KeySchema...)

		in.AttributeDefinitions = appendAttributeDefinition(in.AttributeDefinitions, name, attrType)
	}
}

// WithRangeKey adds a sort key.
func WithRangeKey(name string, attrType types.ScalarAttributeType) TableOption {
	return func(in *dynamodb.CreateTableInput) {
		in.KeySchema = append(in.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(name),
			KeyType:       types.KeyTypeRange,
		})

		in.AttributeDefinitions = appendAttributeDefinition(in.AttributeDefinitions, name, attrType)
	}
}

// WithBillingMode overrides the on-demand default.
func WithBillingMode(mode types.BillingMode) TableOption {
	return func(in *dynamodb.CreateTableInput) {
		in.BillingMode = mode
	}
}

// WithProvisionedThroughput switches the table to provisioned capacity.
func WithProvisionedThroughput(read, write int64) TableOption {
	return func(in *dynamodb.CreateTableInput) {
		in.BillingMode = types.BillingModeProvisioned
		in.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(read),
			WriteCapacityUnits: aws.Int64(write),
		}
	}
}

// WithGSI adds a global secondary index projecting all attributes.
func WithGSI(index, hashAttr string, hashType types.ScalarAttributeType) TableOption {
	return func(in *dynamodb.CreateTableInput) {
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(index),
			KeySchema: []types.KeySchemaElement{{
				AttributeName: aws.String(hashAttr),
				KeyType:       types.KeyTypeHash,
			}},
			Projection: &types.Projection{
				ProjectionType: types.ProjectionTypeAll,
			},
		})

		in.AttributeDefinitions = appendAttributeDefinition(in.AttributeDefinitions, hashAttr, hashType)
	}
}

func appendAttributeDefinition(defs []types.AttributeDefinition, name string, attrType types.ScalarAttributeType) []types.AttributeDefinition {
	for _, def := range defs {
		if aws.ToString(def.AttributeName) == name {
			return defs
		}
	}

	return append(defs, types.AttributeDefinition{
		AttributeName: aws.String(name),
		AttributeType: attrType,
	})
}
