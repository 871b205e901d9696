// Package ddblocal runs Amazon's dynamodb-local in a container for
// integration tests. Tests that cannot reach a Docker daemon are skipped,
// not failed.
package ddblocal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultImage is the dynamodb-local image Start runs unless overridden.
	DefaultImage = "amazon/dynamodb-local:2.5.2"

	port           = "8000/tcp"
	startupTimeout = 45 * time.Second
)

// Container is a running dynamodb-local instance.
type Container struct {
	// Endpoint is the base URL of the instance, e.g. "http://localhost:32768".
	Endpoint string

	inner testcontainers.Container
}

type options struct {
	image string
}

// Option adjusts how Start runs the container.
type Option func(*options)

// WithImage overrides DefaultImage, e.g. to pin a different dynamodb-local
// release.
func WithImage(image string) Option {
	return func(o *options) {
		o.image = image
	}
}

// Start launches dynamodb-local in memory-only mode and waits until its port
// accepts connections.
func Start(ctx context.Context, opts ...Option) (*Container, error) {
	o := options{image: DefaultImage}
	for _, opt := range opts {
		opt(&o)
	}

	req := testcontainers.ContainerRequest{
		Image:        o.image,
		ExposedPorts: []string{port},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory"},
		WaitingFor:   wait.ForExposedPort().WithStartupTimeout(startupTimeout),
	}

	inner, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting dynamodb-local: %w", err)
	}

	endpoint, err := inner.Endpoint(ctx, "http")
	if err != nil {
		return nil, errors.Join(fmt.Errorf("resolving dynamodb-local endpoint: %w", err), inner.Terminate(ctx))
	}

	log.Printf("dynamodb-local up at %s", endpoint)

	return &Container{Endpoint: endpoint, inner: inner}, nil
}

// Terminate stops and removes the container.
func (c *Container) Terminate(ctx context.Context) error {
	return c.inner.Terminate(ctx)
}

// Client returns an SDK v2 client aimed at the container, with the dummy
// static credentials dynamodb-local expects and retries disabled so broken
// requests fail fast.
func (c *Container) Client(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("localhost"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(c.Endpoint)
	}), nil
}

// StartForTest starts a container for the lifetime of the test and returns
// a client aimed at it. The test is skipped when no container runtime is
// available, and fails on any other error.
func StartForTest(tb testing.TB) *dynamodb.Client {
	tb.Helper()

	ctx := context.Background()

	c, err := Start(ctx)
	if err != nil {
		tb.Skipf("dynamodb-local unavailable: %v", err)
	}

	tb.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			tb.Logf("terminating dynamodb-local: %v", err)
		}
	})

	client, err := c.Client(ctx)
	if err != nil {
		tb.Fatalf("building dynamodb-local client: %v", err)
	}

	return client
}
