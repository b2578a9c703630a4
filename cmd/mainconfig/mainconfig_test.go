package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/intake-agent/internal/config"
)

func TestLoadAWSConfigLocalStack(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "ap-south-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566/",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadAWSConfig: %v", err)
	}
	if awsCfg.Region != "ap-south-1" {
		t.Fatalf("unexpected region %q", awsCfg.Region)
	}
	if got := aws.ToString(awsCfg.BaseEndpoint); got != "http://localhost:4566" {
		t.Fatalf("unexpected endpoint %q", got)
	}
	if awsCfg.RetryMaxAttempts != retryMaxAttempts {
		t.Fatalf("retry attempts = %d", awsCfg.RetryMaxAttempts)
	}

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}
}

func TestLoadAWSConfigDefaults(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{AWSAccessKeyID: "only-id"})
	if err != nil {
		t.Fatalf("LoadAWSConfig: %v", err)
	}
	if awsCfg.Region != defaultRegion {
		t.Fatalf("region = %q, want %q", awsCfg.Region, defaultRegion)
	}
	if awsCfg.BaseEndpoint != nil {
		t.Fatalf("expected no endpoint override, got %q", *awsCfg.BaseEndpoint)
	}
	if _, ok := staticCredentials(&appconfig.Config{AWSAccessKeyID: "only-id"}); ok {
		t.Fatalf("half a key pair should not build static credentials")
	}
}
