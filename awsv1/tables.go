package awsv1

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/truora/ddbtest"
)

// CreateTestTable creates a table and blocks until the v1 waiter reports it
// usable, polling once per second for up to 200 attempts. A nil or empty
// TableName is replaced with ddbtest.UniqueTableName(); BillingMode defaults
// to on-demand. The caller's input is never modified. Returns the name of
// the created table.
func CreateTestTable(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.CreateTableInput, opts ...request.Option) (string, error) {
	req := *in
	if aws.StringValue(req.TableName) == "" {
		req.TableName = aws.String(ddbtest.UniqueTableName())
	}

	if req.BillingMode == nil {
		req.BillingMode = aws.String(dynamodb.BillingModePayPerRequest)
	}

	name := aws.StringValue(req.TableName)

	log.Printf("creating test table %s", name)

	_, err := api.CreateTableWithContext(ctx, &req, opts...)
	if err != nil {
		return "", fmt.Errorf("creating table %s: %w", name, err)
	}

	describe := &dynamodb.DescribeTableInput{TableName: req.TableName}

	err = api.WaitUntilTableExistsWithContext(ctx, describe,
		request.WithWaiterDelay(request.ConstantWaiterDelay(time.Second)),
		request.WithWaiterMaxAttempts(200))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ddbtest.ErrWaitTimeout, name, err)
	}

	return name, nil
}

// DeleteTestTable drops a table created by CreateTestTable.
func DeleteTestTable(ctx aws.Context, api dynamodbiface.DynamoDBAPI, name string, opts ...request.Option) error {
	log.Printf("deleting test table %s", name)

	_, err := api.DeleteTableWithContext(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)}, opts...)
	if err != nil {
		return fmt.Errorf("deleting table %s: %w", name, err)
	}

	return nil
}

// WithTable creates a table, hands its name to fn and deletes it when fn
// returns. The delete is attempted on every exit path, a panicking fn
// included; fn's error and the cleanup error are combined with errors.Join.
func WithTable(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.CreateTableInput, fn func(ctx aws.Context, table string) error, opts ...request.Option) (err error) {
	name, err := CreateTestTable(ctx, api, in, opts...)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, DeleteTestTable(ctx, api, name, opts...))
	}()

	return fn(ctx, name)
}
