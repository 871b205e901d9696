// Package wire is a minimal DynamoDB JSON protocol client. It sends
// operations as raw POST bodies with an X-Amz-Target header and hands back
// the raw response bytes, so tests can exercise endpoints below the SDK:
// malformed requests, unknown operations, and responses the SDK would
// reinterpret or retry.
package wire

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/smithy-go"
)

const (
	// TargetPrefix qualifies operation names in the X-Amz-Target header.
	TargetPrefix = "DynamoDB_20120810"

	contentType    = "application/x-amz-json-1.0"
	signingService = "dynamodb"
)

// Client sends DynamoDB JSON operations to one endpoint. It is immutable
// after New and safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials aws.CredentialsProvider
	region      string
	sign        bool
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithSigV4 signs every request with AWS Signature Version 4. Endpoints
// that enforce authorization, such as Alternator with enforcement enabled,
// reject unsigned requests.
func WithSigV4(credentials aws.CredentialsProvider, region string) Option {
	return func(c *Client) {
		c.credentials = credentials
		c.region = region
		c.sign = true
	}
}

// New returns a client for the endpoint base URL, for example
// "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do sends one operation and returns the raw response body. A non-2xx
// status is returned as an *APIError carrying the decoded error type and
// the raw body.
func (c *Client) Do(ctx context.Context, action string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", action, err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", TargetPrefix+"."+action)

	if c.sign {
		if err := c.signRequest(ctx, req, body); err != nil {
			return nil, fmt.Errorf("signing %s request: %w", action, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s request: %w", action, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, data)
	}

	return data, nil
}

// DoJSON marshals in as the request body and unmarshals the response into
// out. A nil in sends an empty object; a nil out discards the response.
func (c *Client) DoJSON(ctx context.Context, action string, in, out interface{}) error {
	body := []byte("{}")

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshalling %s request: %w", action, err)
		}
	}

	data, err := c.Do(ctx, action, body)
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshalling %s response: %w", action, err)
	}

	return nil
}

func (c *Client) signRequest(ctx context.Context, req *http.Request, body []byte) error {
	credentials, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(body)

	signer := v4.NewSigner()

	return signer.SignHTTP(ctx, credentials, req, hex.EncodeToString(hash[:]), signingService, c.region, time.Now())
}

// APIError is a DynamoDB wire-protocol error. It implements smithy.APIError
// so errors.As interoperates with SDK error handling.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
	Raw        []byte
}

var _ smithy.APIError = (*APIError)(nil)

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (http status %d)", e.Code, e.Message, e.HTTPStatus)
}

// ErrorCode returns the error type with its namespace prefix removed.
func (e *APIError) ErrorCode() string { return e.Code }

// ErrorMessage returns the server-provided message.
func (e *APIError) ErrorMessage() string { return e.Message }

// ErrorFault classifies by HTTP status: 5xx is a server fault, anything
// else a client fault.
func (e *APIError) ErrorFault() smithy.ErrorFault {
	if e.HTTPStatus >= 500 {
		return smithy.FaultServer
	}

	return smithy.FaultClient
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Code:       "UnknownError",
		HTTPStatus: status,
		Raw:        body,
	}

	var wireErr struct {
		Type     string `json:"__type"`
		Message  string `json:"message"`
		MessageU string `json:"Message"`
	}

	if err := json.Unmarshal(body, &wireErr); err != nil {
		apiErr.Message = string(body)
		return apiErr
	}

	if wireErr.Type != "" {
		// The wire form is namespace-qualified, e.g.
		// "com.amazonaws.dynamodb.v20120810#ResourceNotFoundException".
		apiErr.Code = wireErr.Type
		if idx := strings.LastIndex(wireErr.Type, "#"); idx >= 0 {
			apiErr.Code = wireErr.Type[idx+1:]
		}
	}

	apiErr.Message = wireErr.Message
	if apiErr.Message == "" {
		apiErr.Message = wireErr.MessageU
	}

	return apiErr
}
