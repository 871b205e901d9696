package ddbmock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type kvRow struct {
	P string `dynamodbav:"p"`
	N int    `dynamodbav:"n"`
}

type evRow struct {
	P string `dynamodbav:"p"`
	C string `dynamodbav:"c"`
	N int    `dynamodbav:"n"`
}

func sv(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func nv(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func requireValidation(c *require.Assertions, err error, msgPart string) {
	var apiErr smithy.APIError

	c.ErrorAs(err, &apiErr)
	c.Equal("ValidationException", apiErr.ErrorCode())
	c.Contains(apiErr.ErrorMessage(), msgPart)
}

func newKVClient(c *require.Assertions, rows ...interface{}) *Client {
	fake := NewClient()
	c.NoError(AddTable(context.Background(), fake, "kv", "p", ""))
	c.NoError(SeedItems(context.Background(), fake, "kv", rows...))

	return fake
}

func newEventsClient(c *require.Assertions, rows ...interface{}) *Client {
	fake := NewClient()
	c.NoError(AddTable(context.Background(), fake, "events", "p", "c"))
	c.NoError(SeedItems(context.Background(), fake, "events", rows...))

	return fake
}

func TestCreateTableValidations(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()

	_, err := fake.CreateTable(ctx, &dynamodb.CreateTableInput{})
	requireValidation(c, err, "TableName cannot be empty")

	_, err = fake.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String("nokeys"),
		BillingMode: types.BillingModePayPerRequest,
	})
	requireValidation(c, err, "No Hash Key specified in schema")

	_, err = fake.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String("nodefs"),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("p"), KeyType: types.KeyTypeHash},
		},
	})
	requireValidation(c, err, "Hash Key not specified in Attribute Definitions")

	_, err = fake.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String("nothroughput"),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("p"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("p"), AttributeType: types.ScalarAttributeTypeS},
		},
	})
	requireValidation(c, err, "No provisioned throughput specified for the table")

	c.NoError(AddTable(ctx, fake, "dup", "p", ""))

	err = AddTable(ctx, fake, "dup", "p", "")

	var inUse *types.ResourceInUseException

	c.ErrorAs(err, &inUse)
}

func TestCreateTableDescribesSchema(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()

	out, err := fake.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String("indexed"),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("p"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("c"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("p"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("c"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("g"), AttributeType: types.ScalarAttributeTypeN},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String("by-g"),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("g"), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	c.NoError(err)
	c.Equal(types.TableStatusActive, out.TableDescription.TableStatus)

	desc, err := fake.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("indexed")})
	c.NoError(err)
	c.Len(desc.Table.KeySchema, 2)
	c.Len(desc.Table.GlobalSecondaryIndexes, 1)
	c.Equal(types.IndexStatusActive, desc.Table.GlobalSecondaryIndexes[0].IndexStatus)
	c.Equal(int64(0), aws.ToInt64(desc.Table.ItemCount))
}

func TestDescribeMissingTable(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()

	_, err := fake.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("ghost")})

	var notFound *types.ResourceNotFoundException

	c.ErrorAs(err, &notFound)
	c.Contains(notFound.ErrorMessage(), "Cannot do operations on a non-existent table")
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c)

	stored := item{
		"p":    sv("row"),
		"n":    nv("42"),
		"tags": &types.AttributeValueMemberSS{Value: []string{"x", "y"}},
		"meta": &types.AttributeValueMemberM{Value: item{"ok": &types.AttributeValueMemberBOOL{Value: true}}},
	}

	_, err := fake.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String("kv"), Item: stored})
	c.NoError(err)

	got, err := fake.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("kv"),
		Key:       item{"p": sv("row")},
	})
	c.NoError(err)
	c.Equal(stored, got.Item)

	// Replacing reports the previous item when asked.
	replaced, err := fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:    aws.String("kv"),
		Item:         item{"p": sv("row"), "n": nv("43")},
		ReturnValues: types.ReturnValueAllOld,
	})
	c.NoError(err)
	c.Equal(stored, replaced.Attributes)

	deleted, err := fake.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String("kv"),
		Key:          item{"p": sv("row")},
		ReturnValues: types.ReturnValueAllOld,
	})
	c.NoError(err)
	c.Equal(nv("43"), deleted.Attributes["n"])

	missing, err := fake.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("kv"),
		Key:       item{"p": sv("row")},
	})
	c.NoError(err)
	c.Nil(missing.Item)

	// Deleting an absent item is not an error and returns no attributes.
	again, err := fake.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String("kv"),
		Key:          item{"p": sv("row")},
		ReturnValues: types.ReturnValueAllOld,
	})
	c.NoError(err)
	c.Nil(again.Attributes)
}

func TestKeyValidation(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newEventsClient(c)

	_, err := fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("events"),
		Item:      item{"c": sv("2024"), "n": nv("1")},
	})
	requireValidation(c, err, "One of the required keys was not given a value: p")

	_, err = fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("events"),
		Item:      item{"p": nv("7"), "c": sv("2024")},
	})
	requireValidation(c, err, "Type mismatch for key p expected: S actual: N")

	_, err = fake.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("events"),
		Key:       item{"p": sv("alice")},
	})
	requireValidation(c, err, "The provided key element does not match the schema")

	_, err = fake.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("missing"),
		Key:       item{"p": sv("alice")},
	})

	var notFound *types.ResourceNotFoundException

	c.ErrorAs(err, &notFound)
}

func TestConditionExpressions(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c)

	createOnly := &dynamodb.PutItemInput{
		TableName:           aws.String("kv"),
		Item:                item{"p": sv("row"), "version": nv("1")},
		ConditionExpression: aws.String("attribute_not_exists(p)"),
	}

	_, err := fake.PutItem(ctx, createOnly)
	c.NoError(err)

	_, err = fake.PutItem(ctx, createOnly)

	var failed *types.ConditionalCheckFailedException

	c.ErrorAs(err, &failed)
	c.Contains(failed.ErrorMessage(), "The conditional request failed")

	// Optimistic update: replace only while the stored version matches.
	_, err = fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String("kv"),
		Item:                      item{"p": sv("row"), "version": nv("2")},
		ConditionExpression:       aws.String("#v = :expected"),
		ExpressionAttributeNames:  map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": nv("1")},
	})
	c.NoError(err)

	_, err = fake.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String("kv"),
		Key:                       item{"p": sv("row")},
		ConditionExpression:       aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": nv("1")},
	})
	c.ErrorAs(err, &failed)

	_, err = fake.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String("kv"),
		Key:                       item{"p": sv("row")},
		ConditionExpression:       aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": nv("2")},
	})
	c.NoError(err)
}

func TestScanPagination(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c,
		kvRow{P: "a", N: 1}, kvRow{P: "b", N: 2}, kvRow{P: "c", N: 3},
		kvRow{P: "d", N: 4}, kvRow{P: "e", N: 5})

	in := &dynamodb.ScanInput{TableName: aws.String("kv"), Limit: aws.Int32(2)}

	page1, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(2), page1.Count)
	c.Equal(int32(2), page1.ScannedCount)
	c.Equal(sv("b"), page1.LastEvaluatedKey["p"])

	in.ExclusiveStartKey = page1.LastEvaluatedKey

	page2, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(sv("c"), page2.Items[0]["p"])
	c.Equal(sv("d"), page2.LastEvaluatedKey["p"])

	in.ExclusiveStartKey = page2.LastEvaluatedKey

	page3, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(1), page3.Count)
	c.Nil(page3.LastEvaluatedKey)
}

func TestScanExactLimitEndsWithEmptyPage(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c,
		kvRow{P: "a", N: 1}, kvRow{P: "b", N: 2},
		kvRow{P: "c", N: 3}, kvRow{P: "d", N: 4})

	in := &dynamodb.ScanInput{TableName: aws.String("kv"), Limit: aws.Int32(2)}

	page1, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(2), page1.Count)
	c.NotNil(page1.LastEvaluatedKey)

	in.ExclusiveStartKey = page1.LastEvaluatedKey

	// The limit lands exactly on the final item, so this page still carries
	// a cursor: without reading ahead the fake cannot know nothing follows.
	page2, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(2), page2.Count)
	c.NotNil(page2.LastEvaluatedKey)

	in.ExclusiveStartKey = page2.LastEvaluatedKey

	page3, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(0), page3.Count)
	c.Empty(page3.Items)
	c.Nil(page3.LastEvaluatedKey)
}

func TestScanFilterPagesCanBeEmpty(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c,
		kvRow{P: "a", N: 1}, kvRow{P: "b", N: 2},
		kvRow{P: "c", N: 3}, kvRow{P: "d", N: 9})

	in := &dynamodb.ScanInput{
		TableName:                 aws.String("kv"),
		Limit:                     aws.Int32(2),
		FilterExpression:          aws.String("n > :threshold"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":threshold": nv("5")},
	}

	page1, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(0), page1.Count)
	c.Equal(int32(2), page1.ScannedCount)
	c.NotNil(page1.LastEvaluatedKey)

	in.ExclusiveStartKey = page1.LastEvaluatedKey

	page2, err := fake.Scan(ctx, in)
	c.NoError(err)
	c.Equal(int32(1), page2.Count)
	c.Equal(int32(2), page2.ScannedCount)
	c.Equal(sv("d"), page2.Items[0]["p"])
}

func TestScanSelectCount(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1}, kvRow{P: "b", N: 2})

	out, err := fake.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String("kv"),
		Select:    types.SelectCount,
	})
	c.NoError(err)
	c.Equal(int32(2), out.Count)
	c.Nil(out.Items)
}

func TestScanRejectsUnknownIndexAndBadStartKey(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1})

	_, err := fake.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String("kv"),
		IndexName: aws.String("by-n"),
	})
	requireValidation(c, err, "The table does not have the specified index: by-n")

	_, err = fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:         aws.String("kv"),
		ExclusiveStartKey: item{"p": sv("a"), "bogus": sv("x")},
	})
	requireValidation(c, err, "The provided starting key is invalid")
}

func TestQueryKeyConditions(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newEventsClient(c,
		evRow{P: "alice", C: "2024-01-01", N: 1},
		evRow{P: "alice", C: "2024-01-15", N: 2},
		evRow{P: "alice", C: "2024-02-01", N: 3},
		evRow{P: "bob", C: "2024-01-01", N: 4})

	query := func(keyCond string, values map[string]types.AttributeValue) (*dynamodb.QueryOutput, error) {
		return fake.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("events"),
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeValues: values,
		})
	}

	out, err := query("p = :p", map[string]types.AttributeValue{":p": sv("alice")})
	c.NoError(err)
	c.Equal(int32(3), out.Count)

	out, err = query("p = :p AND begins_with(c, :prefix)", map[string]types.AttributeValue{
		":p": sv("alice"), ":prefix": sv("2024-01"),
	})
	c.NoError(err)
	c.Equal(int32(2), out.Count)

	out, err = query("p = :p AND c BETWEEN :lo AND :hi", map[string]types.AttributeValue{
		":p": sv("alice"), ":lo": sv("2024-01-10"), ":hi": sv("2024-02-28"),
	})
	c.NoError(err)
	c.Equal(int32(2), out.Count)

	out, err = query("p = :p AND c >= :c", map[string]types.AttributeValue{
		":p": sv("alice"), ":c": sv("2024-01-15"),
	})
	c.NoError(err)
	c.Equal(int32(2), out.Count)
	c.Equal(sv("2024-01-15"), out.Items[0]["c"])
}

func TestQueryValidations(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newEventsClient(c, evRow{P: "alice", C: "a", N: 1})

	_, err := fake.Query(ctx, &dynamodb.QueryInput{TableName: aws.String("events")})
	requireValidation(c, err, "Either the KeyConditions or KeyConditionExpression parameter must be specified in the request.")

	query := func(keyCond string, values map[string]types.AttributeValue) error {
		_, err := fake.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String("events"),
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeValues: values,
		})

		return err
	}

	err = query("c = :c", map[string]types.AttributeValue{":c": sv("a")})
	requireValidation(c, err, "Query condition missed key schema element: p")

	err = query("p > :p", map[string]types.AttributeValue{":p": sv("alice")})
	requireValidation(c, err, "Query key condition not supported")

	err = query("p = :p AND p = :p", map[string]types.AttributeValue{":p": sv("alice")})
	requireValidation(c, err, "KeyConditionExpressions must only contain one condition per key")

	err = query("p = :p AND c > :c AND c < :c", map[string]types.AttributeValue{
		":p": sv("alice"), ":c": sv("a"),
	})
	requireValidation(c, err, "KeyConditionExpressions must only contain one condition per key")

	err = query("p = :p OR c = :c", map[string]types.AttributeValue{
		":p": sv("alice"), ":c": sv("a"),
	})
	requireValidation(c, err, "Query key condition not supported")
}

func TestQueryReverseAndPagination(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newEventsClient(c,
		evRow{P: "alice", C: "a", N: 1},
		evRow{P: "alice", C: "b", N: 2},
		evRow{P: "alice", C: "c", N: 3})

	in := &dynamodb.QueryInput{
		TableName:                 aws.String("events"),
		KeyConditionExpression:    aws.String("p = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":p": sv("alice")},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(2),
	}

	var got []string

	for {
		out, err := fake.Query(ctx, in)
		c.NoError(err)

		for _, it := range out.Items {
			got = append(got, it["c"].(*types.AttributeValueMemberS).Value)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	c.Equal([]string{"c", "b", "a"}, got)
}

func TestQueryScannedCountSkipsOtherPartitions(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newEventsClient(c,
		evRow{P: "alice", C: "a", N: 1},
		evRow{P: "alice", C: "b", N: 2},
		evRow{P: "alice", C: "c", N: 3},
		evRow{P: "bob", C: "a", N: 4})

	out, err := fake.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String("events"),
		KeyConditionExpression:    aws.String("p = :p"),
		FilterExpression:          aws.String("n > :min"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":p": sv("alice"), ":min": nv("1")},
	})
	c.NoError(err)

	// Items outside the queried partition are never read, so they do not
	// show up in ScannedCount either.
	c.Equal(int32(3), out.ScannedCount)
	c.Equal(int32(2), out.Count)
}

func TestProjectionExpressions(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c)

	_, err := fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("kv"),
		Item:      item{"p": sv("row"), "n": nv("1"), "extra": sv("noise")},
	})
	c.NoError(err)

	got, err := fake.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String("kv"),
		Key:                      item{"p": sv("row")},
		ProjectionExpression:     aws.String("p, #num"),
		ExpressionAttributeNames: map[string]string{"#num": "n"},
	})
	c.NoError(err)
	c.Equal(item{"p": sv("row"), "n": nv("1")}, got.Item)

	scanned, err := fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:            aws.String("kv"),
		ProjectionExpression: aws.String("n"),
	})
	c.NoError(err)
	c.Equal(item{"n": nv("1")}, scanned.Items[0])
}

func TestExpressionAttributeValidation(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1})

	_, err := fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String("kv"),
		ExpressionAttributeNames: map[string]string{"#x": "x"},
	})
	requireValidation(c, err, unusedExpressionAttributeNamesMsg)
	requireValidation(c, err, "#x")

	_, err = fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String("kv"),
		FilterExpression:          aws.String("n = :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":n": nv("1"), ":orphan": nv("2")},
	})
	requireValidation(c, err, unusedExpressionAttributeValuesMsg)
	requireValidation(c, err, ":orphan")

	_, err = fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String("kv"),
		FilterExpression:          aws.String("#attr-1 = :n"),
		ExpressionAttributeNames:  map[string]string{"#attr-1": "n"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":n": nv("1")},
	})
	requireValidation(c, err, invalidExpressionAttributeName)

	_, err = fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String("kv"),
		FilterExpression:          aws.String("n = :v-1"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v-1": nv("1")},
	})
	requireValidation(c, err, invalidExpressionAttributeValue)
}

func TestExpressionParserRejections(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1})

	scanFilter := func(filter string, values map[string]types.AttributeValue) error {
		_, err := fake.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String("kv"),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
		})

		return err
	}

	err := scanFilter("meta.inner = :v", map[string]types.AttributeValue{":v": sv("x")})
	requireValidation(c, err, "Nested document paths are not supported")

	err = scanFilter("size(p) > :v", map[string]types.AttributeValue{":v": nv("1")})
	requireValidation(c, err, "Invalid function name; function: size")

	err = scanFilter("n = :missing", nil)
	requireValidation(c, err, "An expression attribute value used in expression is not defined; attribute value: :missing")

	err = scanFilter("#name = :v", map[string]types.AttributeValue{":v": sv("x")})
	requireValidation(c, err, "An expression attribute name used in the document path is not defined; attribute name: #name")
}

func TestFilterFunctionsAndBoolean(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c)

	_, err := fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("kv"),
		Item: item{
			"p":    sv("row1"),
			"tags": &types.AttributeValueMemberSS{Value: []string{"red", "blue"}},
			"note": sv("hello world"),
		},
	})
	c.NoError(err)

	_, err = fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("kv"),
		Item:      item{"p": sv("row2"), "note": sv("goodbye")},
	})
	c.NoError(err)

	out, err := fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String("kv"),
		FilterExpression:          aws.String("contains(tags, :tag) OR begins_with(note, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":tag": sv("red"), ":prefix": sv("good")},
	})
	c.NoError(err)
	c.Equal(int32(2), out.Count)

	out, err = fake.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String("kv"),
		FilterExpression: aws.String("attribute_exists(tags) AND attribute_not_exists(ghost)"),
	})
	c.NoError(err)
	c.Equal(int32(1), out.Count)
	c.Equal(sv("row1"), out.Items[0]["p"])
}

func TestEmulateFailure(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1})
	fake.EmulateFailure(FailureConditionInternalServerError)

	var ise *types.InternalServerError

	_, err := fake.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("kv")})
	c.ErrorAs(err, &ise)

	_, err = fake.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("kv"),
		Item:      item{"p": sv("b")},
	})
	c.ErrorAs(err, &ise)

	_, err = fake.ListTables(ctx, &dynamodb.ListTablesInput{})
	c.ErrorAs(err, &ise)

	fake.EmulateFailure(FailureConditionNone)

	out, err := fake.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("kv")})
	c.NoError(err)
	c.Equal(int32(1), out.Count)
}

func TestDelayActivation(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()
	fake.DelayActivation(2)

	out, err := fake.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String("slow"),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("p"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("p"), AttributeType: types.ScalarAttributeTypeS},
		},
	})
	c.NoError(err)
	c.Equal(types.TableStatusCreating, out.TableDescription.TableStatus)

	describe := &dynamodb.DescribeTableInput{TableName: aws.String("slow")}

	for _, want := range []types.TableStatus{types.TableStatusCreating, types.TableStatusCreating, types.TableStatusActive} {
		desc, err := fake.DescribeTable(ctx, describe)
		c.NoError(err)
		c.Equal(want, desc.Table.TableStatus)
	}
}

func TestClearTableAndReset(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := newKVClient(c, kvRow{P: "a", N: 1}, kvRow{P: "b", N: 2})

	c.NoError(fake.ClearTable("kv"))

	out, err := fake.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("kv")})
	c.NoError(err)
	c.Equal(int32(0), out.Count)

	// The schema survives a clear.
	_, err = fake.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("kv")})
	c.NoError(err)

	var notFound *types.ResourceNotFoundException

	c.ErrorAs(fake.ClearTable("ghost"), &notFound)

	fake.Reset()

	_, err = fake.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("kv")})
	c.ErrorAs(err, &notFound)
}

func TestListTablesPagination(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()
	for _, name := range []string{"delta", "alpha", "echo", "bravo", "charlie"} {
		c.NoError(AddTable(ctx, fake, name, "p", ""))
	}

	page1, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(2)})
	c.NoError(err)
	c.Equal([]string{"alpha", "bravo"}, page1.TableNames)
	c.Equal("bravo", aws.ToString(page1.LastEvaluatedTableName))

	page2, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{
		Limit:                   aws.Int32(2),
		ExclusiveStartTableName: page1.LastEvaluatedTableName,
	})
	c.NoError(err)
	c.Equal([]string{"charlie", "delta"}, page2.TableNames)

	page3, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{
		Limit:                   aws.Int32(2),
		ExclusiveStartTableName: page2.LastEvaluatedTableName,
	})
	c.NoError(err)
	c.Equal([]string{"echo"}, page3.TableNames)
	c.Nil(page3.LastEvaluatedTableName)

	all, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{})
	c.NoError(err)
	c.Len(all.TableNames, 5)
	c.Nil(all.LastEvaluatedTableName)
}

func TestListTablesBugModes(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	fake := NewClient()
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		c.NoError(AddTable(ctx, fake, name, "p", ""))
	}

	fake.BreakListTables(ListTablesBugEmptyPage)

	out, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	c.NoError(err)
	c.Empty(out.TableNames)
	c.Equal(phantomMarker, aws.ToString(out.LastEvaluatedTableName))

	fake.BreakListTables(ListTablesBugStuckMarker)

	page1, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	c.NoError(err)
	c.Equal([]string{"alpha"}, page1.TableNames)
	c.Equal("alpha", aws.ToString(page1.LastEvaluatedTableName))

	page2, err := fake.ListTables(ctx, &dynamodb.ListTablesInput{
		Limit:                   aws.Int32(1),
		ExclusiveStartTableName: page1.LastEvaluatedTableName,
	})
	c.NoError(err)
	c.Equal([]string{"bravo"}, page2.TableNames)
	c.Equal("alpha", aws.ToString(page2.LastEvaluatedTableName))

	fake.BreakListTables(ListTablesBugNone)

	page2, err = fake.ListTables(ctx, &dynamodb.ListTablesInput{
		Limit:                   aws.Int32(1),
		ExclusiveStartTableName: page1.LastEvaluatedTableName,
	})
	c.NoError(err)
	c.Equal("bravo", aws.ToString(page2.LastEvaluatedTableName))
}
