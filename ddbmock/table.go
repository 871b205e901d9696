package ddbmock

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

type keyAttr struct {
	name     string
	attrType types.ScalarAttributeType
}

// table stores items under a canonical primary-key string and keeps the key
// set sorted, so scans are deterministic and pagination cursors are cheap to
// resolve.
type table struct {
	name             string
	hashKey          keyAttr
	rangeKey         *keyAttr
	billing          types.BillingMode
	throughput       *types.ProvisionedThroughput
	gsis             []types.GlobalSecondaryIndexDescription
	createdAt        time.Time
	pendingDescribes int

	data       map[string]item
	sortedKeys []string
}

func newTable(input *dynamodb.CreateTableInput) (*table, error) {
	t := &table{
		name:       aws.ToString(input.TableName),
		billing:    input.BillingMode,
		throughput: input.ProvisionedThroughput,
		createdAt:  time.Now(),
		data:       map[string]item{},
		sortedKeys: []string{},
	}

	if err := t.applyKeySchema(input.KeySchema, input.AttributeDefinitions); err != nil {
		return nil, err
	}

	if t.billing != types.BillingModePayPerRequest && t.throughput == nil {
		return nil, errValidation("No provisioned throughput specified for the table")
	}

	if err := t.applyGlobalIndexes(input); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *table) applyKeySchema(schema []types.KeySchemaElement, defs []types.AttributeDefinition) error {
	if len(schema) == 0 {
		return errValidation("No Hash Key specified in schema")
	}

	for _, el := range schema {
		name := aws.ToString(el.AttributeName)

		attrType, ok := attributeType(defs, name)

		switch el.KeyType {
		case types.KeyTypeHash:
			if !ok {
				return errValidation("Hash Key not specified in Attribute Definitions")
			}

			t.hashKey = keyAttr{name: name, attrType: attrType}
		case types.KeyTypeRange:
			if !ok {
				return errValidation("Range Key not specified in Attribute Definitions")
			}

			t.rangeKey = &keyAttr{name: name, attrType: attrType}
		default:
			return errValidation("Invalid KeyType " + string(el.KeyType))
		}
	}

	if t.hashKey.name == "" {
		return errValidation("No Hash Key specified in schema")
	}

	return nil
}

// applyGlobalIndexes records GSI definitions for DescribeTable. The fake
// does not project or query secondary indexes.
func (t *table) applyGlobalIndexes(input *dynamodb.CreateTableInput) error {
	if input.GlobalSecondaryIndexes == nil {
		return nil
	}

	if len(input.GlobalSecondaryIndexes) == 0 {
		return errValidation("GSI list is empty/invalid")
	}

	for _, gsi := range input.GlobalSecondaryIndexes {
		if t.billing != types.BillingModePayPerRequest && gsi.ProvisionedThroughput == nil {
			return errValidation("No provisioned throughput specified for the global secondary index")
		}

		for _, el := range gsi.KeySchema {
			if _, ok := attributeType(input.AttributeDefinitions, aws.ToString(el.AttributeName)); !ok {
				return errValidation("Global Secondary Index key not specified in Attribute Definitions")
			}
		}

		t.gsis = append(t.gsis, types.GlobalSecondaryIndexDescription{
			IndexName:   gsi.IndexName,
			KeySchema:   gsi.KeySchema,
			Projection:  gsi.Projection,
			IndexStatus: types.IndexStatusActive,
		})
	}

	return nil
}

func attributeType(defs []types.AttributeDefinition, name string) (types.ScalarAttributeType, bool) {
	for _, def := range defs {
		if aws.ToString(def.AttributeName) == name {
			return def.AttributeType, true
		}
	}

	return "", false
}

// primaryKey derives the canonical key string for an item or a Key map.
func (t *table) primaryKey(it item) (string, error) {
	key, err := keyPart(it[t.hashKey.name], t.hashKey)
	if err != nil {
		return "", err
	}

	if t.rangeKey != nil {
		rangePart, err := keyPart(it[t.rangeKey.name], *t.rangeKey)
		if err != nil {
			return "", err
		}

		key += "\x00" + rangePart
	}

	return key, nil
}

func keyPart(av types.AttributeValue, attr keyAttr) (string, error) {
	if av == nil {
		return "", errValidation("One of the required keys was not given a value: " + attr.name)
	}

	actual := attributeTypeName(av)
	if string(attr.attrType) != actual {
		return "", errValidation(fmt.Sprintf("Type mismatch for key %s expected: %s actual: %s", attr.name, attr.attrType, actual))
	}

	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return base64.StdEncoding.EncodeToString(v.Value), nil
	default:
		return "", errValidation("Key attributes must be of type S, N or B")
	}
}

// keyOf extracts the primary-key attributes of an item, for use as a
// pagination cursor.
func (t *table) keyOf(it item) item {
	key := item{t.hashKey.name: it[t.hashKey.name]}
	if t.rangeKey != nil {
		key[t.rangeKey.name] = it[t.rangeKey.name]
	}

	return key
}

func (t *table) validateKeyMap(key item) error {
	expected := 1
	if t.rangeKey != nil {
		expected = 2
	}

	if len(key) != expected {
		return errValidation("The provided key element does not match the schema")
	}

	return nil
}

// resolveStartKey converts an ExclusiveStartKey map into the canonical
// cursor that search resumes after. An empty map means start from the top.
func (t *table) resolveStartKey(startKey item) (string, error) {
	if len(startKey) == 0 {
		return "", nil
	}

	if err := t.validateKeyMap(startKey); err != nil {
		return "", errValidation("The provided starting key is invalid")
	}

	return t.primaryKey(startKey)
}

func (t *table) put(it item) {
	key, _ := t.primaryKey(it)

	if _, exists := t.data[key]; !exists {
		pos := sort.SearchStrings(t.sortedKeys, key)
		t.sortedKeys = append(t.sortedKeys, "")
		copy(t.sortedKeys[pos+1:], t.sortedKeys[pos:])
		t.sortedKeys[pos] = key
	}

	t.data[key] = copyItem(it)
}

func (t *table) get(key string) (item, bool) {
	it, ok := t.data[key]

	return it, ok
}

func (t *table) remove(key string) (item, bool) {
	it, ok := t.data[key]
	if !ok {
		return nil, false
	}

	delete(t.data, key)

	pos := sort.SearchStrings(t.sortedKeys, key)
	t.sortedKeys = append(t.sortedKeys[:pos], t.sortedKeys[pos+1:]...)

	return it, true
}

func (t *table) clear() {
	t.data = map[string]item{}
	t.sortedKeys = []string{}
}

type searchQuery struct {
	startKey string
	limit    int32
	forward  bool
	keyCond  node
	filter   node
}

type pageResult struct {
	items   []item
	scanned int32
	lastKey item
}

// search walks the sorted key set from just past startKey, evaluating at
// most limit items. Items failing keyCond are never evaluated; items
// failing filter are evaluated but not returned, which is what makes pages
// with zero items and a continuation cursor possible. lastKey is set
// whenever the page ended because of the limit, even if no further items
// exist; the service cannot know without reading ahead, and neither do we.
func (t *table) search(q searchQuery) pageResult {
	res := pageResult{items: []item{}}

	keys := t.sortedKeys

	var idx int

	if q.forward {
		idx = sort.SearchStrings(keys, q.startKey)
		if q.startKey != "" && idx < len(keys) && keys[idx] == q.startKey {
			idx++
		}
	} else {
		if q.startKey == "" {
			idx = len(keys) - 1
		} else {
			idx = sort.SearchStrings(keys, q.startKey) - 1
		}
	}

	step := 1
	if !q.forward {
		step = -1
	}

	for ; idx >= 0 && idx < len(keys); idx += step {
		it := t.data[keys[idx]]

		if q.keyCond != nil && !q.keyCond.eval(it) {
			continue
		}

		res.scanned++

		if q.filter == nil || q.filter.eval(it) {
			res.items = append(res.items, copyItem(it))
		}

		if q.limit > 0 && res.scanned == q.limit {
			res.lastKey = t.keyOf(it)
			break
		}
	}

	return res
}

func (t *table) description() *types.TableDescription {
	status := types.TableStatusActive
	if t.pendingDescribes > 0 {
		status = types.TableStatusCreating
	}

	desc := &types.TableDescription{
		TableName:        aws.String(t.name),
		TableStatus:      status,
		CreationDateTime: aws.Time(t.createdAt),
		ItemCount:        aws.Int64(int64(len(t.data))),
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String(t.hashKey.name),
			KeyType:       types.KeyTypeHash,
		}},
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String(t.hashKey.name),
			AttributeType: t.hashKey.attrType,
		}},
		GlobalSecondaryIndexes: t.gsis,
	}

	if t.rangeKey != nil {
		desc.KeySchema = append(desc.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(t.rangeKey.name),
			KeyType:       types.KeyTypeRange,
		})

		desc.AttributeDefinitions = append(desc.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(t.rangeKey.name),
			AttributeType: t.rangeKey.attrType,
		})
	}

	if t.billing != "" {
		desc.BillingModeSummary = &types.BillingModeSummary{BillingMode: t.billing}
	}

	return desc
}

func copyItem(it item) item {
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}

	return out
}
