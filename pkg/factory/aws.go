package factory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"mercator-hq/tokenmeter/pkg/config"
)

// LoadAWSConfig resolves region, credentials and profile. Static
// credentials are used when both key fields are set; otherwise the default
// provider chain applies.
func LoadAWSConfig(ctx context.Context, cfg *config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for region %q: %w", cfg.Region, err)
	}
	return awsCfg, nil
}

func endpoint(cfg *config.AWSConfig) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}

// NewBedrockClient creates a Bedrock runtime client.
func NewBedrockClient(awsCfg aws.Config, cfg *config.AWSConfig) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if ep := endpoint(cfg); ep != nil {
			o.BaseEndpoint = ep
		}
	})
}

// NewCloudWatchClient creates a CloudWatch client.
func NewCloudWatchClient(awsCfg aws.Config, cfg *config.AWSConfig) *cloudwatch.Client {
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if ep := endpoint(cfg); ep != nil {
			o.BaseEndpoint = ep
		}
	})
}

// NewDynamoClient creates a DynamoDB client.
func NewDynamoClient(awsCfg aws.Config, cfg *config.AWSConfig) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if ep := endpoint(cfg); ep != nil {
			o.BaseEndpoint = ep
		}
	})
}
