// Package secrets resolves API credentials at startup: an environment
// variable wins, otherwise the name is looked up inside the JSON
// secret referenced by AWS_SECRET_ARN.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/chapterhq/roster-sync/internal/config"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider resolves named secrets.
type Provider struct {
	client SecretsManagerAPI
	// cached JSON secret payload, fetched once per process.
	values map[string]string
}

// NewProvider creates a Provider using the default AWS credential
// chain.
func NewProvider(ctx context.Context, region string) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Provider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// NewProviderWithClient wires an existing client, used by tests.
func NewProviderWithClient(client SecretsManagerAPI) *Provider {
	return &Provider{client: client}
}

// Get resolves a secret by name. The environment variable of the same
// name takes precedence; otherwise the name is read from the JSON
// secret at AWS_SECRET_ARN.
func (p *Provider) Get(ctx context.Context, name string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}

	if p.values == nil {
		arn := os.Getenv("AWS_SECRET_ARN")
		if arn == "" {
			return "", fmt.Errorf("secret %s not in environment and AWS_SECRET_ARN is not set", name)
		}

		out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(arn),
		})
		if err != nil {
			return "", fmt.Errorf("fetching secret %s: %w", arn, err)
		}

		if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &p.values); err != nil {
			return "", fmt.Errorf("decoding secret payload: %w", err)
		}
	}

	v, ok := p.values[name]
	if !ok {
		return "", fmt.Errorf("secret %s not found in secret payload", name)
	}
	return v, nil
}

// Resolve fills the credential fields the environment left empty from
// the shared secret payload. No-op when AWS_SECRET_ARN is unset.
func Resolve(ctx context.Context, cfg *config.Config) error {
	if os.Getenv("AWS_SECRET_ARN") == "" {
		return nil
	}

	provider, err := NewProvider(ctx, cfg.State.Region)
	if err != nil {
		return err
	}
	return ResolveWith(ctx, provider, cfg)
}

// ResolveWith applies an existing provider, used by tests.
func ResolveWith(ctx context.Context, provider *Provider, cfg *config.Config) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{"DIRECTORY_API_KEY", &cfg.Directory.APIKey},
		{"IDENTITY_CLIENT_SECRET", &cfg.Identity.ClientSecret},
		{"INGEST_SHARED_KEY", &cfg.Ingest.SharedKey},
	}

	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := provider.Get(ctx, t.name)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", t.name, err)
		}
		*t.dst = v
	}
	return nil
}
