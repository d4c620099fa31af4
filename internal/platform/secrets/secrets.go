// Package secrets fetches the token signing key from AWS Secrets Manager and
// caches it for the lifetime of the process.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// API is the subset of the Secrets Manager client used by the provider.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var _ API = (*secretsmanager.Client)(nil)

// Provider resolves a named secret once and serves the cached value to every
// subsequent caller. Only a successful fetch is cached: a failed fetch
// surfaces its error and leaves the cell empty so the next call retries.
type Provider struct {
	client API
	name   string

	mu  sync.Mutex
	key []byte
}

func NewProvider(client API, name string) *Provider {
	return &Provider{client: client, name: name}
}

// SigningKey returns the secret bytes, fetching them on first use.
func (p *Provider) SigningKey(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.name),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", p.name, err)
	}

	var key []byte
	switch {
	case out.SecretString != nil:
		key = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		key = out.SecretBinary
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("secret %q is empty", p.name)
	}

	p.key = key
	return p.key, nil
}
