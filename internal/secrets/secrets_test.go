package secrets

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhq/roster-sync/internal/config"
)

type fakeSecretsManager struct {
	payload string
	calls   int
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(f.payload),
	}, nil
}

func TestGet_EnvWins(t *testing.T) {
	t.Setenv("DIRECTORY_API_KEY", "from-env")

	p := NewProviderWithClient(&fakeSecretsManager{})
	v, err := p.Get(context.Background(), "DIRECTORY_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestGet_FromSecretsManager(t *testing.T) {
	t.Setenv("AWS_SECRET_ARN", "arn:aws:secretsmanager:::secret/test")

	fake := &fakeSecretsManager{payload: `{"DIRECTORY_API_KEY":"from-sm","OTHER":"x"}`}
	p := NewProviderWithClient(fake)

	v, err := p.Get(context.Background(), "DIRECTORY_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-sm", v)

	// Second lookup reuses the cached payload.
	_, err = p.Get(context.Background(), "OTHER")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestGet_MissingEverywhere(t *testing.T) {
	t.Setenv("AWS_SECRET_ARN", "")

	p := NewProviderWithClient(&fakeSecretsManager{})
	_, err := p.Get(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestGet_NameAbsentFromPayload(t *testing.T) {
	t.Setenv("AWS_SECRET_ARN", "arn:aws:secretsmanager:::secret/test")

	p := NewProviderWithClient(&fakeSecretsManager{payload: `{}`})
	_, err := p.Get(context.Background(), "DIRECTORY_API_KEY")
	assert.Error(t, err)
}

func TestResolveWith(t *testing.T) {
	t.Setenv("AWS_SECRET_ARN", "arn:aws:secretsmanager:::secret/test")

	fake := &fakeSecretsManager{payload: `{
		"DIRECTORY_API_KEY": "dir-key",
		"IDENTITY_CLIENT_SECRET": "id-secret",
		"INGEST_SHARED_KEY": "ingest-key"
	}`}
	p := NewProviderWithClient(fake)

	cfg := &config.Config{}
	cfg.Identity.ClientSecret = "already-set"

	require.NoError(t, ResolveWith(context.Background(), p, cfg))
	assert.Equal(t, "dir-key", cfg.Directory.APIKey)
	assert.Equal(t, "already-set", cfg.Identity.ClientSecret)
	assert.Equal(t, "ingest-key", cfg.Ingest.SharedKey)
	assert.Equal(t, 1, fake.calls)
}
