// Package ddbmock is an in-memory stand-in for a DynamoDB-compatible
// service. The fake client implements the SDK v2 method set the helpers in
// this repository use, with real Limit/ExclusiveStartKey pagination, a
// documented expression subset, failure injection, and deliberately broken
// ListTables modes for exercising pagination-bug detection. NewServer wraps
// the same engine in an HTTP handler speaking the DynamoDB JSON protocol.
package ddbmock

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const (
	defaultPageLimit = 100

	unusedExpressionAttributeNamesMsg  = "Value provided in ExpressionAttributeNames unused in expressions"
	unusedExpressionAttributeValuesMsg = "Value provided in ExpressionAttributeValues unused in expressions"
	invalidExpressionAttributeName     = "ExpressionAttributeNames contains invalid key"
	invalidExpressionAttributeValue    = "ExpressionAttributeValues contains invalid key"
)

var (
	expressionAttributeNamesRegex  = regexp.MustCompile("^#[A-Za-z0-9_]+$")
	expressionAttributeValuesRegex = regexp.MustCompile("^:[A-Za-z0-9_]+$")
)

// FailureCondition selects the failure the fake emulates.
type FailureCondition string

const (
	// FailureConditionNone restores normal operation.
	FailureConditionNone FailureCondition = "none"
	// FailureConditionInternalServerError makes every data operation fail
	// with an InternalServerError, the retriable 500 class.
	FailureConditionInternalServerError FailureCondition = "internal_server"
)

var emulatingErrors = map[FailureCondition]error{
	FailureConditionNone:                nil,
	FailureConditionInternalServerError: &types.InternalServerError{Message: aws.String("emulated error")},
}

// ListTablesBug selects a pagination-protocol violation for ListTables to
// commit on purpose, so callers can verify they detect server-side
// pagination bugs instead of looping forever or terminating silently.
type ListTablesBug string

const (
	// ListTablesBugNone restores correct pagination.
	ListTablesBugNone ListTablesBug = "none"
	// ListTablesBugEmptyPage returns a continuation marker on a page that
	// carries zero table names.
	ListTablesBugEmptyPage ListTablesBug = "empty_page"
	// ListTablesBugStuckMarker echoes the caller's start marker back as the
	// continuation marker, so the cursor never advances.
	ListTablesBugStuckMarker ListTablesBug = "stuck_marker"
)

const phantomMarker = "phantom-continuation"

// Client is an in-memory fake of the DynamoDB service. All operations are
// serialized through one mutex; the zero value is not usable, construct with
// NewClient.
type Client struct {
	mu              sync.Mutex
	tables          map[string]*table
	forceFailureErr error
	listTablesBug   ListTablesBug
	activationPolls int
}

// NewClient returns an empty fake ready to serve requests.
func NewClient() *Client {
	return &Client{
		tables:        map[string]*table{},
		listTablesBug: ListTablesBugNone,
	}
}

// EmulateFailure forces every subsequent data operation to fail with the
// error class of condition until reset with FailureConditionNone.
func (c *Client) EmulateFailure(condition FailureCondition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forceFailureErr = emulatingErrors[condition]
}

// BreakListTables makes ListTables violate the pagination protocol in the
// given mode until reset with ListTablesBugNone.
func (c *Client) BreakListTables(mode ListTablesBug) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listTablesBug = mode
}

// DelayActivation makes every table created afterwards report CREATING for
// its first polls DescribeTable calls, for exercising readiness waiters.
func (c *Client) DelayActivation(polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activationPolls = polls
}

// CreateTable registers a new table.
func (c *Client) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableName := aws.ToString(input.TableName)
	if tableName == "" {
		return nil, errValidation("TableName cannot be empty")
	}

	if _, ok := c.tables[tableName]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Cannot create preexisting table")}
	}

	t, err := newTable(input)
	if err != nil {
		return nil, err
	}

	t.pendingDescribes = c.activationPolls
	c.tables[tableName] = t

	return &dynamodb.CreateTableOutput{TableDescription: t.description()}, nil
}

// DeleteTable drops a table and its data.
func (c *Client) DeleteTable(ctx context.Context, input *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	desc := t.description()
	desc.TableStatus = types.TableStatusDeleting

	delete(c.tables, t.name)

	return &dynamodb.DeleteTableOutput{TableDescription: desc}, nil
}

// DescribeTable reports table metadata. Tables created after DelayActivation
// report CREATING for their first polls calls.
func (c *Client) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	desc := t.description()
	if t.pendingDescribes > 0 {
		t.pendingDescribes--
	}

	return &dynamodb.DescribeTableOutput{Table: desc}, nil
}

// ListTables returns table names in lexical order, honoring Limit and
// ExclusiveStartTableName, unless a bug mode is armed.
func (c *Client) ListTables(ctx context.Context, input *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	start := aws.ToString(input.ExclusiveStartTableName)
	if start != "" {
		idx := sort.SearchStrings(names, start)
		if idx < len(names) && names[idx] == start {
			idx++
		}

		names = names[idx:]
	}

	limit := int(aws.ToInt32(input.Limit))
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}

	if c.listTablesBug == ListTablesBugEmptyPage {
		return &dynamodb.ListTablesOutput{
			TableNames:             []string{},
			LastEvaluatedTableName: aws.String(phantomMarker),
		}, nil
	}

	page := names
	if len(page) > limit {
		page = page[:limit]
	}

	out := &dynamodb.ListTablesOutput{TableNames: append([]string{}, page...)}

	if len(names) > limit {
		out.LastEvaluatedTableName = aws.String(page[len(page)-1])
	}

	// A stuck marker only manifests past the first page: the first response
	// hands out a valid cursor, every follow-up echoes the caller's cursor
	// back unchanged.
	if c.listTablesBug == ListTablesBugStuckMarker && start != "" {
		out.LastEvaluatedTableName = aws.String(start)
	}

	return out, nil
}

// PutItem stores an item, replacing any existing item with the same key.
func (c *Client) PutItem(ctx context.Context, input *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	err := validateExpressionAttributes(input.ExpressionAttributeNames, input.ExpressionAttributeValues, aws.ToString(input.ConditionExpression))
	if err != nil {
		return nil, err
	}

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	key, err := t.primaryKey(input.Item)
	if err != nil {
		return nil, err
	}

	old, _ := t.get(key)

	if input.ConditionExpression != nil {
		ok, err := evalCondition(aws.ToString(input.ConditionExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues, old)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}

	t.put(input.Item)

	out := &dynamodb.PutItemOutput{}
	if input.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = copyItem(old)
	}

	return out, nil
}

// GetItem reads one item by primary key.
func (c *Client) GetItem(ctx context.Context, input *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	err := validateExpressionAttributes(input.ExpressionAttributeNames, nil, aws.ToString(input.ProjectionExpression))
	if err != nil {
		return nil, err
	}

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	if err := t.validateKeyMap(input.Key); err != nil {
		return nil, err
	}

	key, err := t.primaryKey(input.Key)
	if err != nil {
		return nil, err
	}

	it, ok := t.get(key)
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}

	it = copyItem(it)

	if input.ProjectionExpression != nil {
		paths, err := parseProjection(aws.ToString(input.ProjectionExpression), input.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}

		it = applyProjection(it, paths)
	}

	return &dynamodb.GetItemOutput{Item: it}, nil
}

// DeleteItem removes one item by primary key.
func (c *Client) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	err := validateExpressionAttributes(input.ExpressionAttributeNames, input.ExpressionAttributeValues, aws.ToString(input.ConditionExpression))
	if err != nil {
		return nil, err
	}

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	if err := t.validateKeyMap(input.Key); err != nil {
		return nil, err
	}

	key, err := t.primaryKey(input.Key)
	if err != nil {
		return nil, err
	}

	if input.ConditionExpression != nil {
		old, _ := t.get(key)

		ok, err := evalCondition(aws.ToString(input.ConditionExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues, old)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}

	old, _ := t.remove(key)

	out := &dynamodb.DeleteItemOutput{}
	if input.ReturnValues == types.ReturnValueAllOld && old != nil {
		out.Attributes = copyItem(old)
	}

	return out, nil
}

// Scan walks the whole table in key order, one page per call.
func (c *Client) Scan(ctx context.Context, input *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	err := validateExpressionAttributes(input.ExpressionAttributeNames, input.ExpressionAttributeValues, aws.ToString(input.FilterExpression), aws.ToString(input.ProjectionExpression))
	if err != nil {
		return nil, err
	}

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	if input.IndexName != nil {
		return nil, errValidation("The table does not have the specified index: " + aws.ToString(input.IndexName))
	}

	q := searchQuery{forward: true, limit: aws.ToInt32(input.Limit)}

	if input.FilterExpression != nil {
		q.filter, err = parseCondition(aws.ToString(input.FilterExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
	}

	q.startKey, err = t.resolveStartKey(input.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	res := t.search(q)

	out := &dynamodb.ScanOutput{
		Count:            int32(len(res.items)),
		ScannedCount:     res.scanned,
		LastEvaluatedKey: res.lastKey,
	}

	if input.Select != types.SelectCount {
		out.Items, err = projectItems(res.items, input.ProjectionExpression, input.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Query walks the items matching a key condition, one page per call.
func (c *Client) Query(ctx context.Context, input *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forceFailureErr != nil {
		return nil, c.forceFailureErr
	}

	err := validateExpressionAttributes(input.ExpressionAttributeNames, input.ExpressionAttributeValues,
		aws.ToString(input.KeyConditionExpression), aws.ToString(input.FilterExpression), aws.ToString(input.ProjectionExpression))
	if err != nil {
		return nil, err
	}

	t, err := c.getTable(aws.ToString(input.TableName))
	if err != nil {
		return nil, err
	}

	if input.IndexName != nil {
		return nil, errValidation("The table does not have the specified index: " + aws.ToString(input.IndexName))
	}

	if input.KeyConditionExpression == nil {
		return nil, errValidation("Either the KeyConditions or KeyConditionExpression parameter must be specified in the request.")
	}

	q := searchQuery{forward: true, limit: aws.ToInt32(input.Limit)}

	q.keyCond, err = parseCondition(aws.ToString(input.KeyConditionExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	if err := validateKeyCondition(q.keyCond, t); err != nil {
		return nil, err
	}

	if input.FilterExpression != nil {
		q.filter, err = parseCondition(aws.ToString(input.FilterExpression), input.ExpressionAttributeNames, input.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
	}

	if input.ScanIndexForward != nil {
		q.forward = aws.ToBool(input.ScanIndexForward)
	}

	q.startKey, err = t.resolveStartKey(input.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	res := t.search(q)

	out := &dynamodb.QueryOutput{
		Count:            int32(len(res.items)),
		ScannedCount:     res.scanned,
		LastEvaluatedKey: res.lastKey,
	}

	if input.Select != types.SelectCount {
		out.Items, err = projectItems(res.items, input.ProjectionExpression, input.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// ClearTable drops all items of one table, keeping its schema.
func (c *Client) ClearTable(tableName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.getTable(tableName)
	if err != nil {
		return err
	}

	t.clear()

	return nil
}

// Reset drops every table.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables = map[string]*table{}
}

// AddTable creates a table with string-typed hash (and optional range) key,
// the shape nearly every test needs.
func AddTable(ctx context.Context, c *Client, tableName, hashKey, rangeKey string) error {
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
		},
	}

	if rangeKey != "" {
		input.KeySchema = append(input.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(rangeKey),
			KeyType:       types.KeyTypeRange,
		})

		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(rangeKey),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	_, err := c.CreateTable(ctx, input)

	return err
}

// SeedItems marshals each value with the attributevalue encoder and puts it
// into the table.
func SeedItems(ctx context.Context, c *Client, tableName string, values ...interface{}) error {
	for _, v := range values {
		it, err := attributevalue.MarshalMap(v)
		if err != nil {
			return fmt.Errorf("marshalling seed item: %w", err)
		}

		_, err = c.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(tableName),
			Item:      it,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) getTable(tableName string) (*table, error) {
	t, ok := c.tables[tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Cannot do operations on a non-existent table")}
	}

	return t, nil
}

func errValidation(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

// evalCondition evaluates a condition expression against the stored item, or
// against an empty item when none exists yet, which is what makes
// attribute_not_exists(pk) the standard create-only guard.
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, existing item) (bool, error) {
	n, err := parseCondition(expr, names, values)
	if err != nil {
		return false, err
	}

	if existing == nil {
		existing = item{}
	}

	return n.eval(existing), nil
}

func projectItems(items []item, projection *string, names map[string]string) ([]item, error) {
	if projection == nil {
		return items, nil
	}

	paths, err := parseProjection(aws.ToString(projection), names)
	if err != nil {
		return nil, err
	}

	out := make([]item, len(items))
	for i, it := range items {
		out[i] = applyProjection(it, paths)
	}

	return out, nil
}

func validateExpressionAttributes(exprNames map[string]string, exprValues map[string]types.AttributeValue, expressions ...string) error {
	joined := strings.TrimSpace(strings.Join(expressions, " "))
	if joined == "" && len(exprNames) == 0 && len(exprValues) == 0 {
		return nil
	}

	names := mapKeys(exprNames)
	values := make([]string, 0, len(exprValues))

	for k := range exprValues {
		values = append(values, k)
	}

	if missing := missingSubstrings(joined, names); len(missing) > 0 {
		return errValidation(fmt.Sprintf("%s: keys: {%s}", unusedExpressionAttributeNamesMsg, strings.Join(missing, ", ")))
	}

	if err := validateSubstitutionKeys(expressionAttributeNamesRegex, names, invalidExpressionAttributeName); err != nil {
		return err
	}

	if missing := missingSubstrings(joined, values); len(missing) > 0 {
		return errValidation(fmt.Sprintf("%s: keys: {%s}", unusedExpressionAttributeValuesMsg, strings.Join(missing, ", ")))
	}

	return validateSubstitutionKeys(expressionAttributeValuesRegex, values, invalidExpressionAttributeValue)
}

func validateSubstitutionKeys(regex *regexp.Regexp, keys []string, errorMsg string) error {
	for _, key := range keys {
		if !regex.MatchString(key) {
			return errValidation(fmt.Sprintf("%s: Syntax error; key: %s", errorMsg, key))
		}
	}

	return nil
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}

func missingSubstrings(s string, substrs []string) []string {
	missing := make([]string, 0, len(substrs))

	for _, substr := range substrs {
		if !strings.Contains(s, substr) {
			missing = append(missing, substr)
		}
	}

	return missing
}
