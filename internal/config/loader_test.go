package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.json")).Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 512, cfg.Chunking.Size)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"chunking": {"size": 256, "overlap": 32},
		"search": {"vector_weight": 0.5, "text_weight": 0.5}
	}`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunking.Size)
	assert.Equal(t, 32, cfg.Chunking.Overlap)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	// Untouched sections keep their defaults.
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	path := writeConfig(t, `{"embedding": {"provider": "cohere"}}`)

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config file")
}

func TestLoadRejectsRemoteProviderWithoutKey(t *testing.T) {
	path := writeConfig(t, `{"embedding": {"provider": "openai"}}`)

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestLoadAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("ENGRAM_API_KEY", "sk-test-key")
	path := writeConfig(t, `{"embedding": {"provider": "openai"}}`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key", cfg.Embedding.APIKey)
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engram.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Chunking.Size = 128
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 128, loaded.Chunking.Size)
}
