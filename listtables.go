package ddbtest

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const defaultListTablesLimit = 100

// ListAllTables pages through ListTables and returns every name the service
// reported, in arrival order and without deduplication, so a server bug that
// repeats names stays visible to the caller. pageLimit <= 0 means 100.
//
// The continuation protocol is checked on every page: a page carrying a
// continuation marker with zero names, or a marker equal to the previous
// one, returns an error wrapping ErrPaginationBroken. Both point at a broken
// server-side paginator, and following such a marker could loop forever.
func ListAllTables(ctx context.Context, api dynamodb.ListTablesAPIClient, pageLimit int32, optFns ...func(*dynamodb.Options)) ([]string, error) {
	if pageLimit <= 0 {
		pageLimit = defaultListTablesLimit
	}

	in := &dynamodb.ListTablesInput{Limit: aws.Int32(pageLimit)}
	names := []string{}

	for {
		out, err := api.ListTables(ctx, in, optFns...)
		if err != nil {
			return nil, err
		}

		names = append(names, out.TableNames...)

		marker := aws.ToString(out.LastEvaluatedTableName)
		if marker == "" {
			return names, nil
		}

		if len(out.TableNames) == 0 {
			return nil, fmt.Errorf("%w: marker %q on a page with no names", ErrPaginationBroken, marker)
		}

		if marker == aws.ToString(in.ExclusiveStartTableName) {
			return nil, fmt.Errorf("%w: marker %q did not advance", ErrPaginationBroken, marker)
		}

		in.ExclusiveStartTableName = out.LastEvaluatedTableName
	}
}
