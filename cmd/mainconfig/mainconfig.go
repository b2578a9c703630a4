package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/intake-agent/internal/config"
)

const (
	defaultRegion    = "us-east-1"
	retryMaxAttempts = 3
)

// LoadAWSConfig builds the SDK config shared by the Bedrock oracle and the
// bookings queue. AWS_ENDPOINT_OVERRIDE points every client at one endpoint,
// which is how LocalStack is used in development.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(retryMaxAttempts),
	}
	if provider, ok := staticCredentials(cfg); ok {
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.AWSEndpointOverride), "/"); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

// staticCredentials is used only when both halves of the key pair are set;
// otherwise the default chain (env, profile, role) applies.
func staticCredentials(cfg *appconfig.Config) (aws.CredentialsProvider, bool) {
	id := strings.TrimSpace(cfg.AWSAccessKeyID)
	secret := strings.TrimSpace(cfg.AWSSecretAccessKey)
	if id == "" || secret == "" {
		return nil, false
	}
	return credentials.NewStaticCredentialsProvider(id, secret, ""), true
}
