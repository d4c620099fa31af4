// Package awsutil loads the shared AWS SDK configuration for the platform
// adapters. A non-empty endpoint routes every service client at a local
// stack (LocalStack or similar) instead of real AWS.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
)

// Load resolves credentials and region from the default chain. When endpoint
// is set, all services resolve to it with an immutable hostname.
func Load(ctx context.Context, region, endpoint string) (aws.Config, error) {
	if endpoint == "" {
		return awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, r string, _ ...any) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
			PartitionID:       "aws",
		}, nil
	})
	return awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(region),
		awscfg.WithEndpointResolverWithOptions(resolver))
}
