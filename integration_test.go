//go:build integration

package ddbtest

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"

	"github.com/truora/ddbtest/testenv"
)

type liveRow struct {
	P string `dynamodbav:"p"`
	N int    `dynamodbav:"n"`
}

func TestLiveTableLifecycle(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	cfg := testenv.SkipIfNoEndpoint(t)

	client, err := cfg.Client(ctx)
	c.NoError(err)

	var created string

	err = WithTable(ctx, client, NewCreateTableInput(""), func(ctx context.Context, table string) error {
		created = table

		rows := []liveRow{{P: "a", N: 1}, {P: "b", N: 2}, {P: "c", N: 3}}
		want := make([]Item, 0, len(rows))

		for _, row := range rows {
			item, err := attributevalue.MarshalMap(row)
			c.NoError(err)

			_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(table),
				Item:      item,
			})
			c.NoError(err)

			want = append(want, item)
		}

		// A page size below the item count forces the cursor loop.
		got, err := FullScan(ctx, client, &dynamodb.ScanInput{
			TableName: aws.String(table),
			Limit:     aws.Int32(2),
		})
		c.NoError(err)

		match, err := ItemsMatch(want, got)
		c.NoError(err)
		c.True(match)

		names, err := ListAllTables(ctx, client, 10)
		c.NoError(err)
		c.Contains(names, table)

		return nil
	})
	c.NoError(err)

	names, err := ListAllTables(ctx, client, 0)
	c.NoError(err)
	c.NotContains(names, created)
}

func TestLivePruneTestTables(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	cfg := testenv.SkipIfNoEndpoint(t)

	client, err := cfg.Client(ctx)
	c.NoError(err)

	name, err := CreateTestTable(ctx, client, NewCreateTableInput(""))
	c.NoError(err)

	deleted, err := PruneTestTables(ctx, client)
	c.NoError(err)
	c.GreaterOrEqual(deleted, 1)

	names, err := ListAllTables(ctx, client, 0)
	c.NoError(err)
	c.NotContains(names, name)
}
