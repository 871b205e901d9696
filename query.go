package ddbtest

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// QueryCounts aggregates the per-page counters of a paginated query.
type QueryCounts struct {
	// ScannedCount is the number of items the server evaluated before
	// applying any filter expression.
	ScannedCount int32
	// Count is the number of items left after filtering.
	Count int32
	// Pages is the number of responses that carried an item array. Pages
	// of a count-only query carry none and are not counted.
	Pages int
}

// FullQuery repeats in's query until the service stops returning a
// continuation cursor and returns every item in page order. Consistency
// defaults as in FullScan.
func FullQuery(ctx context.Context, api dynamodb.QueryAPIClient, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) ([]Item, error) {
	items := []Item{}

	err := queryPages(ctx, api, in, optFns, func(out *dynamodb.QueryOutput) {
		items = append(items, out.Items...)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FullQueryCounts is FullQuery plus the summed pre-filter and post-filter
// counts and the number of item-bearing pages. Counts are summed from the
// responses independently of len(items); with a filter expression the two
// can legitimately disagree on every page.
func FullQueryCounts(ctx context.Context, api dynamodb.QueryAPIClient, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (QueryCounts, []Item, error) {
	var counts QueryCounts

	items := []Item{}

	err := queryPages(ctx, api, in, optFns, func(out *dynamodb.QueryOutput) {
		if out.Items != nil {
			items = append(items, out.Items...)
			counts.Pages++
		}

		counts.Count += out.Count
		counts.ScannedCount += out.ScannedCount
	})
	if err != nil {
		return QueryCounts{}, nil, err
	}

	return counts, items, nil
}

func queryPages(ctx context.Context, api dynamodb.QueryAPIClient, in *dynamodb.QueryInput, optFns []func(*dynamodb.Options), visit func(*dynamodb.QueryOutput)) error {
	req := *in
	if req.ConsistentRead == nil {
		req.ConsistentRead = aws.Bool(true)
	}

	for {
		out, err := api.Query(ctx, &req, optFns...)
		if err != nil {
			return err
		}

		visit(out)

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}

		req.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

type queryBuilder struct {
	key    expression.KeyConditionBuilder
	filter *expression.ConditionBuilder
	index  string
}

// QueryOption adjusts the input produced by QueryForKey.
type QueryOption func(*queryBuilder)

// WithRangeCondition restricts the query to sort keys matching cond, for
// example expression.Key("c").BeginsWith("2024").
func WithRangeCondition(cond expression.KeyConditionBuilder) QueryOption {
	return func(b *queryBuilder) {
		b.key = b.key.And(cond)
	}
}

// WithFilter applies cond as a post-read filter expression.
func WithFilter(cond expression.ConditionBuilder) QueryOption {
	return func(b *queryBuilder) {
		b.filter = &cond
	}
}

// WithIndex targets a secondary index instead of the base table.
func WithIndex(name string) QueryOption {
	return func(b *queryBuilder) {
		b.index = name
	}
}

// QueryForKey builds a QueryInput selecting every item under one partition
// key value, ready for FullQuery. hashValue is a native Go value and is
// marshalled by the expression builder.
func QueryForKey(table, hashName string, hashValue interface{}, opts ...QueryOption) (*dynamodb.QueryInput, error) {
	b := queryBuilder{
		key: expression.Key(hashName).Equal(expression.Value(hashValue)),
	}

	for _, opt := range opts {
		opt(&b)
	}

	builder := expression.NewBuilder().WithKeyCondition(b.key)
	if b.filter != nil {
		builder = builder.WithFilter(*b.filter)
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("building query expression: %w", err)
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if b.index != "" {
		in.IndexName = aws.String(b.index)
	}

	return in, nil
}
