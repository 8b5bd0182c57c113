package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaAcceptsMinimalConfig(t *testing.T) {
	assert.NoError(t, ValidateSchema([]byte(`{}`)))
	assert.NoError(t, ValidateSchema([]byte(`{"embedding": {"provider": "local"}}`)))
}

func TestValidateSchemaRejectsBadValues(t *testing.T) {
	assert.Error(t, ValidateSchema([]byte(`{"embedding": {"provider": "mystery"}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"embedding": {"dimension": 0}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"chunking": {"size": "large"}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"logging": {"level": "verbose"}}`)))
}

func TestValidateRemoteProviderNeedsKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "gemini"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	cfg.Embedding.APIKey = "some-key"
	assert.NoError(t, Validate(cfg))
}

func TestValidateOverlapBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.Size = 100
	cfg.Chunking.Overlap = 100
	require.Error(t, Validate(cfg))

	cfg.Chunking.Overlap = 99
	assert.NoError(t, Validate(cfg))
}

func TestValidateWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.VectorWeight = 0
	cfg.Search.TextWeight = 0
	require.Error(t, Validate(cfg))

	cfg.Search.TextWeight = 1
	assert.NoError(t, Validate(cfg))
}
