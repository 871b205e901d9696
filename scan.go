package ddbtest

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// FullScan repeats in's scan until the service stops returning a
// continuation cursor and returns every item in page order. Reads are
// strongly consistent unless the caller set ConsistentRead explicitly;
// the caller's input is never modified.
func FullScan(ctx context.Context, api dynamodb.ScanAPIClient, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) ([]Item, error) {
	items := []Item{}

	err := scanPages(ctx, api, in, optFns, func(out *dynamodb.ScanOutput) {
		items = append(items, out.Items...)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FullScanCount is FullScan plus the sum of every page's reported count.
// The server reports counts independently of the item arrays: a count-only
// scan returns counts on pages that carry no items at all, so the sum is
// taken from the responses and not from len(items).
func FullScanCount(ctx context.Context, api dynamodb.ScanAPIClient, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (int32, []Item, error) {
	var count int32

	items := []Item{}

	err := scanPages(ctx, api, in, optFns, func(out *dynamodb.ScanOutput) {
		items = append(items, out.Items...)
		count += out.Count
	})
	if err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

// scanPages drives the pagination loop. Termination is keyed on the absence
// of LastEvaluatedKey, never on an empty page: a page may carry zero items
// while more pages remain.
func scanPages(ctx context.Context, api dynamodb.ScanAPIClient, in *dynamodb.ScanInput, optFns []func(*dynamodb.Options), visit func(*dynamodb.ScanOutput)) error {
	req := *in
	if req.ConsistentRead == nil {
		req.ConsistentRead = aws.Bool(true)
	}

	for {
		out, err := api.Scan(ctx, &req, optFns...)
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
