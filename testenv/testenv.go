// Package testenv resolves where integration tests should point their
// DynamoDB clients: a local container, a dynamodb-local process, an
// Alternator node or a real endpoint. Configuration layers, later wins:
// built-in defaults, an optional ddbtest.yaml, an optional .env file, and
// plain environment variables.
package testenv

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv1 "github.com/aws/aws-sdk-go/aws"
	credentialsv1 "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the yaml file Load reads when DDBTEST_CONFIG is not
// set.
const DefaultConfigFile = "ddbtest.yaml"

// Config locates the DynamoDB-compatible endpoint integration tests run
// against. An empty Endpoint means there is no integration target and tests
// needing one should skip.
type Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
}

// Load resolves the configuration. The yaml file is optional; a file named
// by DDBTEST_CONFIG must exist and parse. The .env file is optional and
// only feeds the process environment, so explicit environment variables
// still win.
func Load() (Config, error) {
	cfg := Config{
		Region:    "localhost",
		AccessKey: "dummy",
		SecretKey: "dummy",
	}

	path := os.Getenv("DDBTEST_CONFIG")
	explicit := path != ""

	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil && explicit {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	// Ignore a missing .env; it is a local convenience file.
	_ = godotenv.Load()

	applyEnv(&cfg.Endpoint, "DDBTEST_ENDPOINT", "LOCAL_DYNAMODB_ENDPOINT")
	applyEnv(&cfg.Region, "DDBTEST_REGION", "AWS_REGION")
	applyEnv(&cfg.AccessKey, "DDBTEST_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	applyEnv(&cfg.SecretKey, "DDBTEST_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	applyEnv(&cfg.SessionToken, "DDBTEST_SESSION_TOKEN", "AWS_SESSION_TOKEN")

	return cfg, nil
}

func applyEnv(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

// Client returns an SDK v2 client for the configured endpoint, with static
// credentials and retries disabled so test failures surface immediately.
func (c Config) Client(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, c.SessionToken)),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}

// SessionV1 returns an SDK v1 session for the configured endpoint, for the
// awsv1 helpers.
func (c Config) SessionV1() (*session.Session, error) {
	awsCfg := &awsv1.Config{
		Region:      awsv1.String(c.Region),
		Credentials: credentialsv1.NewStaticCredentials(c.AccessKey, c.SecretKey, c.SessionToken),
		MaxRetries:  awsv1.Int(0),
	}

	if c.Endpoint != "" {
		awsCfg.Endpoint = awsv1.String(c.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("building v1 session: %w", err)
	}

	return sess, nil
}

// SkipIfNoEndpoint loads the configuration and skips the test unless an
// integration endpoint is configured.
func SkipIfNoEndpoint(tb testing.TB) Config {
	tb.Helper()

	cfg, err := Load()
	if err != nil {
		tb.Fatalf("loading test environment: %v", err)
	}

	if cfg.Endpoint == "" {
		tb.Skip("no DynamoDB endpoint configured; set DDBTEST_ENDPOINT or provide ddbtest.yaml")
	}

	return cfg
}
