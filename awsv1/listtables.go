package awsv1

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/truora/ddbtest"
)

const defaultListTablesLimit = 100

// ListAllTables pages through ListTables and returns every name the service
// reported, in arrival order and without deduplication. pageLimit <= 0
// means 100.
//
// The continuation protocol is checked on every page as in the root
// package: violations return an error wrapping ddbtest.ErrPaginationBroken.
func ListAllTables(ctx aws.Context, api dynamodbiface.DynamoDBAPI, pageLimit int64, opts ...request.Option) ([]string, error) {
	if pageLimit <= 0 {
		pageLimit = defaultListTablesLimit
	}

	in := &dynamodb.ListTablesInput{Limit: aws.Int64(pageLimit)}
	names := []string{}

	for {
		out, err := api.ListTablesWithContext(ctx, in, opts...)
		if err != nil {
			return nil, err
		}

		names = append(names, aws.StringValueSlice(out.TableNames)...)

		marker := aws.StringValue(out.LastEvaluatedTableName)
		if marker == "" {
			return names, nil
		}

		if len(out.TableNames) == 0 {
			return nil, fmt.Errorf("%w: marker %q on a page with no names", ddbtest.ErrPaginationBroken, marker)
		}

		if marker == aws.StringValue(in.ExclusiveStartTableName) {
			return nil, fmt.Errorf("%w: marker %q did not advance", ddbtest.ErrPaginationBroken, marker)
		}

		in.ExclusiveStartTableName = out.LastEvaluatedTableName
	}
}
