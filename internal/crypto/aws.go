package crypto

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// AWSClients bundles the service clients used for envelope encryption.
// Endpoint, when set, points every client at a local stack.
type AWSClients struct {
	KMS            *kms.Client
	SSM            *ssm.Client
	SecretsManager *secretsmanager.Client
}

func NewAWSClients(ctx context.Context, region, endpoint string) (*AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}

	return &AWSClients{
		KMS: kms.NewFromConfig(cfg, func(o *kms.Options) {
			o.BaseEndpoint = base
		}),
		SSM: ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			o.BaseEndpoint = base
		}),
		SecretsManager: secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = base
		}),
	}, nil
}
