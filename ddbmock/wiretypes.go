package ddbmock

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// wireValue is the DynamoDB JSON representation of an AttributeValue,
// decodable with standard json encoding. Exactly one member must be set.
type wireValue struct {
	B    []byte                `json:"B,omitempty"`
	BOOL *bool                 `json:"BOOL,omitempty"`
	BS   [][]byte              `json:"BS,omitempty"`
	L    []*wireValue          `json:"L,omitempty"`
	M    map[string]*wireValue `json:"M,omitempty"`
	N    *string               `json:"N,omitempty"`
	NS   []string              `json:"NS,omitempty"`
	NULL *bool                 `json:"NULL,omitempty"`
	S    *string               `json:"S,omitempty"`
	SS   []string              `json:"SS,omitempty"`
}

type wireKeySchemaElement struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

type wireAttributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

type wireProvisionedThroughput struct {
	ReadCapacityUnits  int64 `json:"ReadCapacityUnits"`
	WriteCapacityUnits int64 `json:"WriteCapacityUnits"`
}

type wireProjection struct {
	ProjectionType   string   `json:"ProjectionType,omitempty"`
	NonKeyAttributes []string `json:"NonKeyAttributes,omitempty"`
}

type wireGlobalSecondaryIndex struct {
	IndexName             string                     `json:"IndexName"`
	KeySchema             []wireKeySchemaElement     `json:"KeySchema"`
	Projection            *wireProjection            `json:"Projection,omitempty"`
	ProvisionedThroughput *wireProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

type createTableRequest struct {
	TableName              string                     `json:"TableName"`
	AttributeDefinitions   []wireAttributeDefinition  `json:"AttributeDefinitions"`
	KeySchema              []wireKeySchemaElement     `json:"KeySchema"`
	BillingMode            string                     `json:"BillingMode,omitempty"`
	ProvisionedThroughput  *wireProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
	GlobalSecondaryIndexes []wireGlobalSecondaryIndex `json:"GlobalSecondaryIndexes,omitempty"`
}

type deleteTableRequest struct {
	TableName string `json:"TableName"`
}

type describeTableRequest struct {
	TableName string `json:"TableName"`
}

type listTablesRequest struct {
	ExclusiveStartTableName *string `json:"ExclusiveStartTableName,omitempty"`
	Limit                   *int32  `json:"Limit,omitempty"`
}

type putItemRequest struct {
	TableName                 string                `json:"TableName"`
	Item                      map[string]*wireValue `json:"Item"`
	ConditionExpression       *string               `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]*wireValue `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                `json:"ReturnValues,omitempty"`
}

type getItemRequest struct {
	TableName                string                `json:"TableName"`
	Key                      map[string]*wireValue `json:"Key"`
	ProjectionExpression     *string               `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ConsistentRead           *bool                 `json:"ConsistentRead,omitempty"`
}

type deleteItemRequest struct {
	TableName                 string                `json:"TableName"`
	Key                       map[string]*wireValue `json:"Key"`
	ConditionExpression       *string               `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]*wireValue `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                `json:"ReturnValues,omitempty"`
}

type scanRequest struct {
	TableName                 string                `json:"TableName"`
	IndexName                 *string               `json:"IndexName,omitempty"`
	Limit                     *int32                `json:"Limit,omitempty"`
	ExclusiveStartKey         map[string]*wireValue `json:"ExclusiveStartKey,omitempty"`
	FilterExpression          *string               `json:"FilterExpression,omitempty"`
	ProjectionExpression      *string               `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]*wireValue `json:"ExpressionAttributeValues,omitempty"`
	Select                    string                `json:"Select,omitempty"`
	ConsistentRead            *bool                 `json:"ConsistentRead,omitempty"`
}

type queryRequest struct {
	TableName                 string                `json:"TableName"`
	IndexName                 *string               `json:"IndexName,omitempty"`
	Limit                     *int32                `json:"Limit,omitempty"`
	ExclusiveStartKey         map[string]*wireValue `json:"ExclusiveStartKey,omitempty"`
	KeyConditionExpression    *string               `json:"KeyConditionExpression,omitempty"`
	FilterExpression          *string               `json:"FilterExpression,omitempty"`
	ProjectionExpression      *string               `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]*wireValue `json:"ExpressionAttributeValues,omitempty"`
	Select                    string                `json:"Select,omitempty"`
	ScanIndexForward          *bool                 `json:"ScanIndexForward,omitempty"`
	ConsistentRead            *bool                 `json:"ConsistentRead,omitempty"`
}

type wireBillingModeSummary struct {
	BillingMode string `json:"BillingMode"`
}

type wireGlobalSecondaryIndexDescription struct {
	IndexName   string                 `json:"IndexName"`
	IndexStatus string                 `json:"IndexStatus,omitempty"`
	KeySchema   []wireKeySchemaElement `json:"KeySchema,omitempty"`
	Projection  *wireProjection        `json:"Projection,omitempty"`
}

type wireTableDescription struct {
	TableName              string                                `json:"TableName"`
	TableStatus            string                                `json:"TableStatus"`
	CreationDateTime       float64                               `json:"CreationDateTime,omitempty"`
	ItemCount              int64                                 `json:"ItemCount"`
	KeySchema              []wireKeySchemaElement                `json:"KeySchema,omitempty"`
	AttributeDefinitions   []wireAttributeDefinition             `json:"AttributeDefinitions,omitempty"`
	BillingModeSummary     *wireBillingModeSummary               `json:"BillingModeSummary,omitempty"`
	GlobalSecondaryIndexes []wireGlobalSecondaryIndexDescription `json:"GlobalSecondaryIndexes,omitempty"`
}

type createTableResponse struct {
	TableDescription *wireTableDescription `json:"TableDescription"`
}

type deleteTableResponse struct {
	TableDescription *wireTableDescription `json:"TableDescription"`
}

type describeTableResponse struct {
	Table *wireTableDescription `json:"Table"`
}

type listTablesResponse struct {
	TableNames             []string `json:"TableNames"`
	LastEvaluatedTableName *string  `json:"LastEvaluatedTableName,omitempty"`
}

type putItemResponse struct {
	Attributes map[string]*wireValue `json:"Attributes,omitempty"`
}

type getItemResponse struct {
	Item map[string]*wireValue `json:"Item,omitempty"`
}

type deleteItemResponse struct {
	Attributes map[string]*wireValue `json:"Attributes,omitempty"`
}

type scanResponse struct {
	Items            []map[string]*wireValue `json:"Items,omitempty"`
	Count            int32                   `json:"Count"`
	ScannedCount     int32                   `json:"ScannedCount"`
	LastEvaluatedKey map[string]*wireValue   `json:"LastEvaluatedKey,omitempty"`
}

// wireValue (JSON) -> types.AttributeValue

func decodeValue(v *wireValue) (types.AttributeValue, error) {
	if v == nil {
		return nil, errValidation("Supplied AttributeValue is empty, must contain exactly one of the supported datatypes")
	}

	set := 0
	for _, present := range []bool{
		v.B != nil, v.BOOL != nil, v.BS != nil, v.L != nil, v.M != nil,
		v.N != nil, v.NS != nil, v.NULL != nil, v.S != nil, v.SS != nil,
	} {
		if present {
			set++
		}
	}

	if set != 1 {
		return nil, errValidation("Supplied AttributeValue is empty, must contain exactly one of the supported datatypes")
	}

	switch {
	case v.S != nil:
		return &types.AttributeValueMemberS{Value: *v.S}, nil
	case v.N != nil:
		return &types.AttributeValueMemberN{Value: *v.N}, nil
	case v.B != nil:
		return &types.AttributeValueMemberB{Value: v.B}, nil
	case v.BOOL != nil:
		return &types.AttributeValueMemberBOOL{Value: *v.BOOL}, nil
	case v.NULL != nil:
		return &types.AttributeValueMemberNULL{Value: *v.NULL}, nil
	case v.SS != nil:
		return &types.AttributeValueMemberSS{Value: v.SS}, nil
	case v.NS != nil:
		return &types.AttributeValueMemberNS{Value: v.NS}, nil
	case v.BS != nil:
		return &types.AttributeValueMemberBS{Value: v.BS}, nil
	case v.L != nil:
		list := make([]types.AttributeValue, len(v.L))

		for i, el := range v.L {
			av, err := decodeValue(el)
			if err != nil {
				return nil, err
			}

			list[i] = av
		}

		return &types.AttributeValueMemberL{Value: list}, nil
	default:
		m, err := decodeItem(v.M)
		if err != nil {
			return nil, err
		}

		return &types.AttributeValueMemberM{Value: m}, nil
	}
}

func decodeItem(m map[string]*wireValue) (item, error) {
	if m == nil {
		return nil, nil
	}

	out := make(item, len(m))

	for k, v := range m {
		av, err := decodeValue(v)
		if err != nil {
			return nil, err
		}

		out[k] = av
	}

	return out, nil
}

// types.AttributeValue -> wireValue (JSON)

func encodeValue(av types.AttributeValue) (*wireValue, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return &wireValue{S: aws.String(v.Value)}, nil
	case *types.AttributeValueMemberN:
		return &wireValue{N: aws.String(v.Value)}, nil
	case *types.AttributeValueMemberB:
		return &wireValue{B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return &wireValue{BOOL: aws.Bool(v.Value)}, nil
	case *types.AttributeValueMemberNULL:
		return &wireValue{NULL: aws.Bool(v.Value)}, nil
	case *types.AttributeValueMemberSS:
		return &wireValue{SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return &wireValue{NS: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return &wireValue{BS: v.Value}, nil
	case *types.AttributeValueMemberL:
		list := make([]*wireValue, len(v.Value))

		for i, el := range v.Value {
			wv, err := encodeValue(el)
			if err != nil {
				return nil, err
			}

			list[i] = wv
		}

		return &wireValue{L: list}, nil
	case *types.AttributeValueMemberM:
		m, err := encodeItem(v.Value)
		if err != nil {
			return nil, err
		}

		return &wireValue{M: m}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func encodeItem(it item) (map[string]*wireValue, error) {
	if it == nil {
		return nil, nil
	}

	out := make(map[string]*wireValue, len(it))

	for k, av := range it {
		wv, err := encodeValue(av)
		if err != nil {
			return nil, err
		}

		out[k] = wv
	}

	return out, nil
}

func encodeItems(items []item) ([]map[string]*wireValue, error) {
	if items == nil {
		return nil, nil
	}

	out := make([]map[string]*wireValue, len(items))

	for i, it := range items {
		m, err := encodeItem(it)
		if err != nil {
			return nil, err
		}

		out[i] = m
	}

	return out, nil
}

// request shapes -> SDK inputs

func (r *createTableRequest) toInput() *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName:             aws.String(r.TableName),
		BillingMode:           types.BillingMode(r.BillingMode),
		KeySchema:             decodeKeySchema(r.KeySchema),
		AttributeDefinitions:  decodeAttributeDefinitions(r.AttributeDefinitions),
		ProvisionedThroughput: decodeThroughput(r.ProvisionedThroughput),
	}

	for _, gsi := range r.GlobalSecondaryIndexes {
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:             aws.String(gsi.IndexName),
			KeySchema:             decodeKeySchema(gsi.KeySchema),
			Projection:            decodeProjection(gsi.Projection),
			ProvisionedThroughput: decodeThroughput(gsi.ProvisionedThroughput),
		})
	}

	return input
}

func decodeKeySchema(schema []wireKeySchemaElement) []types.KeySchemaElement {
	out := make([]types.KeySchemaElement, len(schema))
	for i, el := range schema {
		out[i] = types.KeySchemaElement{
			AttributeName: aws.String(el.AttributeName),
			KeyType:       types.KeyType(el.KeyType),
		}
	}

	return out
}

func decodeAttributeDefinitions(defs []wireAttributeDefinition) []types.AttributeDefinition {
	out := make([]types.AttributeDefinition, len(defs))
	for i, def := range defs {
		out[i] = types.AttributeDefinition{
			AttributeName: aws.String(def.AttributeName),
			AttributeType: types.ScalarAttributeType(def.AttributeType),
		}
	}

	return out
}

func decodeThroughput(tp *wireProvisionedThroughput) *types.ProvisionedThroughput {
	if tp == nil {
		return nil
	}

	return &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(tp.ReadCapacityUnits),
		WriteCapacityUnits: aws.Int64(tp.WriteCapacityUnits),
	}
}

func decodeProjection(p *wireProjection) *types.Projection {
	if p == nil {
		return nil
	}

	return &types.Projection{
		ProjectionType:   types.ProjectionType(p.ProjectionType),
		NonKeyAttributes: p.NonKeyAttributes,
	}
}

func (r *listTablesRequest) toInput() *dynamodb.ListTablesInput {
	return &dynamodb.ListTablesInput{
		ExclusiveStartTableName: r.ExclusiveStartTableName,
		Limit:                   r.Limit,
	}
}

func (r *putItemRequest) toInput() (*dynamodb.PutItemInput, error) {
	it, err := decodeItem(r.Item)
	if err != nil {
		return nil, err
	}

	values, err := decodeItem(r.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	return &dynamodb.PutItemInput{
		TableName:                 aws.String(r.TableName),
		Item:                      it,
		ConditionExpression:       r.ConditionExpression,
		ExpressionAttributeNames:  r.ExpressionAttributeNames,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValue(r.ReturnValues),
	}, nil
}

func (r *getItemRequest) toInput() (*dynamodb.GetItemInput, error) {
	key, err := decodeItem(r.Key)
	if err != nil {
		return nil, err
	}

	return &dynamodb.GetItemInput{
		TableName:                aws.String(r.TableName),
		Key:                      key,
		ProjectionExpression:     r.ProjectionExpression,
		ExpressionAttributeNames: r.ExpressionAttributeNames,
		ConsistentRead:           r.ConsistentRead,
	}, nil
}

func (r *deleteItemRequest) toInput() (*dynamodb.DeleteItemInput, error) {
	key, err := decodeItem(r.Key)
	if err != nil {
		return nil, err
	}

	values, err := decodeItem(r.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	return &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.TableName),
		Key:                       key,
		ConditionExpression:       r.ConditionExpression,
		ExpressionAttributeNames:  r.ExpressionAttributeNames,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValue(r.ReturnValues),
	}, nil
}

func (r *scanRequest) toInput() (*dynamodb.ScanInput, error) {
	startKey, err := decodeItem(r.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	values, err := decodeItem(r.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	return &dynamodb.ScanInput{
		TableName:                 aws.String(r.TableName),
		IndexName:                 r.IndexName,
		Limit:                     r.Limit,
		ExclusiveStartKey:         startKey,
		FilterExpression:          r.FilterExpression,
		ProjectionExpression:      r.ProjectionExpression,
		ExpressionAttributeNames:  r.ExpressionAttributeNames,
		ExpressionAttributeValues: values,
		Select:                    types.Select(r.Select),
		ConsistentRead:            r.ConsistentRead,
	}, nil
}

func (r *queryRequest) toInput() (*dynamodb.QueryInput, error) {
	startKey, err := decodeItem(r.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}

	values, err := decodeItem(r.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	return &dynamodb.QueryInput{
		TableName:                 aws.String(r.TableName),
		IndexName:                 r.IndexName,
		Limit:                     r.Limit,
		ExclusiveStartKey:         startKey,
		KeyConditionExpression:    r.KeyConditionExpression,
		FilterExpression:          r.FilterExpression,
		ProjectionExpression:      r.ProjectionExpression,
		ExpressionAttributeNames:  r.ExpressionAttributeNames,
		ExpressionAttributeValues: values,
		Select:                    types.Select(r.Select),
		ScanIndexForward:          r.ScanIndexForward,
		ConsistentRead:            r.ConsistentRead,
	}, nil
}

// SDK outputs -> response shapes

func encodeTableDescription(desc *types.TableDescription) *wireTableDescription {
	if desc == nil {
		return nil
	}

	out := &wireTableDescription{
		TableName:   aws.ToString(desc.TableName),
		TableStatus: string(desc.TableStatus),
		ItemCount:   aws.ToInt64(desc.ItemCount),
		KeySchema:   encodeKeySchema(desc.KeySchema),
	}

	if desc.CreationDateTime != nil {
		out.CreationDateTime = encodeEpoch(aws.ToTime(desc.CreationDateTime))
	}

	for _, def := range desc.AttributeDefinitions {
		out.AttributeDefinitions = append(out.AttributeDefinitions, wireAttributeDefinition{
			AttributeName: aws.ToString(def.AttributeName),
			AttributeType: string(def.AttributeType),
		})
	}

	if desc.BillingModeSummary != nil {
		out.BillingModeSummary = &wireBillingModeSummary{BillingMode: string(desc.BillingModeSummary.BillingMode)}
	}

	for _, gsi := range desc.GlobalSecondaryIndexes {
		wgsi := wireGlobalSecondaryIndexDescription{
			IndexName:   aws.ToString(gsi.IndexName),
			IndexStatus: string(gsi.IndexStatus),
			KeySchema:   encodeKeySchema(gsi.KeySchema),
		}

		if gsi.Projection != nil {
			wgsi.Projection = &wireProjection{
				ProjectionType:   string(gsi.Projection.ProjectionType),
				NonKeyAttributes: gsi.Projection.NonKeyAttributes,
			}
		}

		out.GlobalSecondaryIndexes = append(out.GlobalSecondaryIndexes, wgsi)
	}

	return out
}

func encodeKeySchema(schema []types.KeySchemaElement) []wireKeySchemaElement {
	out := make([]wireKeySchemaElement, len(schema))
	for i, el := range schema {
		out[i] = wireKeySchemaElement{
			AttributeName: aws.ToString(el.AttributeName),
			KeyType:       string(el.KeyType),
		}
	}

	return out
}

func encodeEpoch(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}
