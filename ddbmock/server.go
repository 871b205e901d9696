package ddbmock

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
)

const (
	contentTypeJSON = "application/x-amz-json-1.0"

	// exceptionPrefix is the namespace DynamoDB qualifies error types with
	// on the wire.
	exceptionPrefix = "com.amazonaws.dynamodb.v20120810#"
)

// Server exposes a Client over the DynamoDB JSON wire protocol, so SDK
// clients and raw wire clients can talk to the fake through a real HTTP
// round trip. Operations arrive as POST / with the operation name in the
// X-Amz-Target header.
type Server struct {
	client *Client
}

// NewServer wraps client in an HTTP handler. A nil client gets a fresh
// empty one.
func NewServer(client *Client) *Server {
	if client == nil {
		client = NewClient()
	}

	return &Server{client: client}
}

// Client returns the fake behind the handler, for seeding tables and arming
// failure modes.
func (s *Server) Client() *Client {
	return s.client
}

// ServeHTTP dispatches DynamoDB JSON API requests based on X-Amz-Target.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer func() {
		err := r.Body.Close()
		if err != nil {
			log.Printf("error closing body: %v", err)
		}
	}()

	op := ""

	target := r.Header.Get("X-Amz-Target")
	if target != "" {
		parts := strings.Split(target, ".")
		op = parts[len(parts)-1]
	}

	ctx := r.Context()
	decoder := json.NewDecoder(r.Body)

	var (
		resp interface{}
		err  error
	)

	switch op {
	case "CreateTable":
		resp, err = s.createTable(ctx, decoder)
	case "DeleteTable":
		resp, err = s.deleteTable(ctx, decoder)
	case "DescribeTable":
		resp, err = s.describeTable(ctx, decoder)
	case "ListTables":
		resp, err = s.listTables(ctx, decoder)
	case "PutItem":
		resp, err = s.putItem(ctx, decoder)
	case "GetItem":
		resp, err = s.getItem(ctx, decoder)
	case "DeleteItem":
		resp, err = s.deleteItem(ctx, decoder)
	case "Scan":
		resp, err = s.scan(ctx, decoder)
	case "Query":
		resp, err = s.query(ctx, decoder)
	default:
		err = &smithy.GenericAPIError{Code: "UnknownOperationException", Message: "unknown operation: " + op}
	}

	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) createTable(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req createTableRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	out, err := s.client.CreateTable(ctx, req.toInput())
	if err != nil {
		return nil, err
	}

	return createTableResponse{TableDescription: encodeTableDescription(out.TableDescription)}, nil
}

func (s *Server) deleteTable(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req deleteTableRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	out, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(req.TableName)})
	if err != nil {
		return nil, err
	}

	return deleteTableResponse{TableDescription: encodeTableDescription(out.TableDescription)}, nil
}

func (s *Server) describeTable(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req describeTableRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(req.TableName)})
	if err != nil {
		return nil, err
	}

	return describeTableResponse{Table: encodeTableDescription(out.Table)}, nil
}

func (s *Server) listTables(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req listTablesRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	out, err := s.client.ListTables(ctx, req.toInput())
	if err != nil {
		return nil, err
	}

	return listTablesResponse{
		TableNames:             out.TableNames,
		LastEvaluatedTableName: out.LastEvaluatedTableName,
	}, nil
}

func (s *Server) putItem(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req putItemRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	out, err := s.client.PutItem(ctx, input)
	if err != nil {
		return nil, err
	}

	attrs, err := encodeItem(out.Attributes)
	if err != nil {
		return nil, err
	}

	return putItemResponse{Attributes: attrs}, nil
}

func (s *Server) getItem(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req getItemRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, err
	}

	it, err := encodeItem(out.Item)
	if err != nil {
		return nil, err
	}

	return getItemResponse{Item: it}, nil
}

func (s *Server) deleteItem(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req deleteItemRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	out, err := s.client.DeleteItem(ctx, input)
	if err != nil {
		return nil, err
	}

	attrs, err := encodeItem(out.Attributes)
	if err != nil {
		return nil, err
	}

	return deleteItemResponse{Attributes: attrs}, nil
}

func (s *Server) scan(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req scanRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, err
	}

	items, err := encodeItems(out.Items)
	if err != nil {
		return nil, err
	}

	lastKey, err := encodeItem(out.LastEvaluatedKey)
	if err != nil {
		return nil, err
	}

	return scanResponse{
		Items:            items,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: lastKey,
	}, nil
}

func (s *Server) query(ctx context.Context, decoder *json.Decoder) (interface{}, error) {
	var req queryRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, errSerialization(err)
	}

	input, err := req.toInput()
	if err != nil {
		return nil, err
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	items, err := encodeItems(out.Items)
	if err != nil {
		return nil, err
	}

	lastKey, err := encodeItem(out.LastEvaluatedKey)
	if err != nil {
		return nil, err
	}

	return scanResponse{
		Items:            items,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: lastKey,
	}, nil
}

func errSerialization(err error) error {
	return &smithy.GenericAPIError{Code: "SerializationException", Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	type errorBody struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
	}

	code := http.StatusBadRequest
	msg := err.Error()
	typ := "InternalFailure"

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		typ = apiErr.ErrorCode()
		msg = apiErr.ErrorMessage()
	}

	if typ == "InternalServerError" {
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(errorBody{Type: exceptionPrefix + typ, Message: msg}); err != nil {
		log.Printf("error encoding error body: %v", err)
	}
}
