package awsv1

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// QueryCounts aggregates the per-page counters of a paginated query.
type QueryCounts struct {
	// ScannedCount is the number of items the server evaluated before
	// applying any filter expression.
	ScannedCount int64
	// Count is the number of items left after filtering.
	Count int64
	// Pages is the number of responses that carried an item array.
	Pages int
}

// FullQuery repeats in's query until the service stops returning a
// continuation cursor and returns every item in page order. Consistency
// defaults as in FullScan.
func FullQuery(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.QueryInput, opts ...request.Option) ([]Item, error) {
	items := []Item{}

	err := queryPages(ctx, api, in, opts, func(out *dynamodb.QueryOutput) {
		items = append(items, out.Items...)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FullQueryCounts is FullQuery plus the summed pre-filter and post-filter
// counts and the number of item-bearing pages.
func FullQueryCounts(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.QueryInput, opts ...request.Option) (QueryCounts, []Item, error) {
	var counts QueryCounts

	items := []Item{}

	err := queryPages(ctx, api, in, opts, func(out *dynamodb.QueryOutput) {
		if out.Items != nil {
			items = append(items, out.Items...)
			counts.Pages++
		}

		counts.Count += aws.Int64Value(out.Count)
		counts.ScannedCount += aws.Int64Value(out.ScannedCount)
	})
	if err != nil {
		return QueryCounts{}, nil, err
	}

	return counts, items, nil
}

func queryPages(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.QueryInput, opts []request.Option, visit func(*dynamodb.QueryOutput)) error {
	req := *in
	if req.ConsistentRead == nil {
		req.ConsistentRead = aws.Bool(true)
	}

	for {
		out, err := api.QueryWithContext(ctx, &req, opts...)
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
