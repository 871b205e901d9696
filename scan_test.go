package ddbtest

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"

	"github.com/truora/ddbtest/ddbmock"
)

var errBoom = errors.New("boom")

// scanScript serves a fixed sequence of pages and records every input it
// was called with.
type scanScript struct {
	pages  []*dynamodb.ScanOutput
	errAt  int
	inputs []dynamodb.ScanInput
}

func (s *scanScript) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	s.inputs = append(s.inputs, *in)

	call := len(s.inputs)
	if s.errAt == call {
		return nil, errBoom
	}

	return s.pages[call-1], nil
}

func itemsForIDs(ids ...string) []Item {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{"p": s(id)})
	}

	return items
}

func TestFullScanFollowsCursors(t *testing.T) {
	c := require.New(t)

	all := itemsForIDs("1", "2", "3", "4", "5")

	script := &scanScript{pages: []*dynamodb.ScanOutput{
		{Items: all[0:2], Count: 2, LastEvaluatedKey: all[1]},
		{Items: all[2:4], Count: 2, LastEvaluatedKey: all[3]},
		{Items: all[4:5], Count: 1},
	}}

	in := &dynamodb.ScanInput{TableName: aws.String("t")}

	items, err := FullScan(context.Background(), script, in)
	c.NoError(err)
	c.Equal(all, items)

	c.Len(script.inputs, 3)
	c.Nil(script.inputs[0].ExclusiveStartKey)
	c.Equal(all[1], script.inputs[1].ExclusiveStartKey)
	c.Equal(all[3], script.inputs[2].ExclusiveStartKey)

	for _, recorded := range script.inputs {
		c.NotNil(recorded.ConsistentRead)
		c.True(*recorded.ConsistentRead)
	}
}

func TestFullScanEmptyPageIsNotTermination(t *testing.T) {
	c := require.New(t)

	all := itemsForIDs("1", "2", "3")

	script := &scanScript{pages: []*dynamodb.ScanOutput{
		{Items: all[0:2], Count: 2, LastEvaluatedKey: all[1]},
		{Items: []Item{}, Count: 0, LastEvaluatedKey: all[2]},
		{Items: all[2:3], Count: 1},
	}}

	items, err := FullScan(context.Background(), script, &dynamodb.ScanInput{TableName: aws.String("t")})
	c.NoError(err)
	c.Equal(all, items)
	c.Len(script.inputs, 3)
}

func TestFullScanDoesNotMutateInput(t *testing.T) {
	c := require.New(t)

	script := &scanScript{pages: []*dynamodb.ScanOutput{
		{Items: itemsForIDs("1"), Count: 1, LastEvaluatedKey: Item{"p": s("1")}},
		{Items: []Item{}, Count: 0},
	}}

	in := &dynamodb.ScanInput{TableName: aws.String("t")}

	_, err := FullScan(context.Background(), script, in)
	c.NoError(err)

	c.Nil(in.ExclusiveStartKey)
	c.Nil(in.ConsistentRead)
}

func TestFullScanKeepsExplicitConsistency(t *testing.T) {
	c := require.New(t)

	script := &scanScript{pages: []*dynamodb.ScanOutput{{Items: []Item{}, Count: 0}}}

	in := &dynamodb.ScanInput{TableName: aws.String("t"), ConsistentRead: aws.Bool(false)}

	_, err := FullScan(context.Background(), script, in)
	c.NoError(err)

	c.NotNil(script.inputs[0].ConsistentRead)
	c.False(*script.inputs[0].ConsistentRead)
}

func TestFullScanPropagatesError(t *testing.T) {
	c := require.New(t)

	script := &scanScript{
		pages: []*dynamodb.ScanOutput{
			{Items: itemsForIDs("1"), Count: 1, LastEvaluatedKey: Item{"p": s("1")}},
			nil,
		},
		errAt: 2,
	}

	items, err := FullScan(context.Background(), script, &dynamodb.ScanInput{TableName: aws.String("t")})
	c.ErrorIs(err, errBoom)
	c.Nil(items)
}

func TestFullScanCountSumsServerCounts(t *testing.T) {
	c := require.New(t)

	// Count-only pages carry no item arrays; the counts still add up.
	script := &scanScript{pages: []*dynamodb.ScanOutput{
		{Count: 3, ScannedCount: 3, LastEvaluatedKey: Item{"p": s("3")}},
		{Count: 4, ScannedCount: 4},
	}}

	count, items, err := FullScanCount(context.Background(), script, &dynamodb.ScanInput{TableName: aws.String("t")})
	c.NoError(err)
	c.Equal(int32(7), count)
	c.Empty(items)
}

func TestFullScanAgainstFake(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := ddbmock.NewClient()
	c.NoError(ddbmock.AddTable(ctx, fake, "tracks", "p", ""))

	type row struct {
		P string `dynamodbav:"p"`
		N int    `dynamodbav:"n"`
	}

	c.NoError(ddbmock.SeedItems(ctx, fake, "tracks",
		row{"a", 1}, row{"b", 2}, row{"c", 3}, row{"d", 4}, row{"e", 5}))

	in := &dynamodb.ScanInput{
		TableName: aws.String("tracks"),
		Limit:     aws.Int32(2),
	}

	items, err := FullScan(ctx, fake, in)
	c.NoError(err)
	c.Len(items, 5)

	count, _, err := FullScanCount(ctx, fake, in)
	c.NoError(err)
	c.Equal(int32(5), count)
}
