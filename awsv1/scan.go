// Package awsv1 mirrors the root ddbtest helpers for code still on
// aws-sdk-go v1: the same pagination, comparison and table lifecycle
// semantics, expressed in v1 types and call conventions. Frozen item forms
// are byte-compatible with the root package, so expectations can be
// compared across SDK flavors.
package awsv1

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// Item is a DynamoDB item as SDK v1 represents it.
type Item = map[string]*dynamodb.AttributeValue

// FullScan repeats in's scan until the service stops returning a
// continuation cursor and returns every item in page order. Reads are
// strongly consistent unless the caller set ConsistentRead explicitly; the
// caller's input is never modified.
func FullScan(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.ScanInput, opts ...request.Option) ([]Item, error) {
	items := []Item{}

	err := scanPages(ctx, api, in, opts, func(out *dynamodb.ScanOutput) {
		items = append(items, out.Items...)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FullScanCount is FullScan plus the sum of every page's reported count,
// taken from the responses and not from len(items), so count-only scans sum
// correctly.
func FullScanCount(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.ScanInput, opts ...request.Option) (int64, []Item, error) {
	var count int64

	items := []Item{}

	err := scanPages(ctx, api, in, opts, func(out *dynamodb.ScanOutput) {
		items = append(items, out.Items...)
		count += aws.Int64Value(out.Count)
	})
	if err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

// scanPages terminates on the absence of LastEvaluatedKey, never on an
// empty page.
func scanPages(ctx aws.Context, api dynamodbiface.DynamoDBAPI, in *dynamodb.ScanInput, opts []request.Option, visit func(*dynamodb.ScanOutput)) error {
	req := *in
	if req.ConsistentRead == nil {
		req.ConsistentRead = aws.Bool(true)
	}

	for {
		out, err := api.ScanWithContext(ctx, &req, opts...)
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
