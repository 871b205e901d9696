package awsv1

import (
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

var errBoom = errors.New("boom")

// stubDynamo satisfies dynamodbiface.DynamoDBAPI through its embedded
// interface; only the methods a test assigns are callable.
type stubDynamo struct {
	dynamodbiface.DynamoDBAPI

	scan        func(aws.Context, *dynamodb.ScanInput, ...request.Option) (*dynamodb.ScanOutput, error)
	query       func(aws.Context, *dynamodb.QueryInput, ...request.Option) (*dynamodb.QueryOutput, error)
	listTables  func(aws.Context, *dynamodb.ListTablesInput, ...request.Option) (*dynamodb.ListTablesOutput, error)
	createTable func(aws.Context, *dynamodb.CreateTableInput, ...request.Option) (*dynamodb.CreateTableOutput, error)
	deleteTable func(aws.Context, *dynamodb.DeleteTableInput, ...request.Option) (*dynamodb.DeleteTableOutput, error)
	waitExists  func(aws.Context, *dynamodb.DescribeTableInput, ...request.WaiterOption) error
}

func (s *stubDynamo) ScanWithContext(ctx aws.Context, in *dynamodb.ScanInput, opts ...request.Option) (*dynamodb.ScanOutput, error) {
	return s.scan(ctx, in, opts...)
}

func (s *stubDynamo) QueryWithContext(ctx aws.Context, in *dynamodb.QueryInput, opts ...request.Option) (*dynamodb.QueryOutput, error) {
	return s.query(ctx, in, opts...)
}

func (s *stubDynamo) ListTablesWithContext(ctx aws.Context, in *dynamodb.ListTablesInput, opts ...request.Option) (*dynamodb.ListTablesOutput, error) {
	return s.listTables(ctx, in, opts...)
}

func (s *stubDynamo) CreateTableWithContext(ctx aws.Context, in *dynamodb.CreateTableInput, opts ...request.Option) (*dynamodb.CreateTableOutput, error) {
	return s.createTable(ctx, in, opts...)
}

func (s *stubDynamo) DeleteTableWithContext(ctx aws.Context, in *dynamodb.DeleteTableInput, opts ...request.Option) (*dynamodb.DeleteTableOutput, error) {
	return s.deleteTable(ctx, in, opts...)
}

func (s *stubDynamo) WaitUntilTableExistsWithContext(ctx aws.Context, in *dynamodb.DescribeTableInput, opts ...request.WaiterOption) error {
	return s.waitExists(ctx, in, opts...)
}

func itemsForIDs(ids ...string) []Item {
	items := make([]Item, 0, len(ids))

	for _, id := range ids {
		items = append(items, Item{"p": {S: aws.String(id)}})
	}

	return items
}
