package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 512, cfg.Chunking.Size)
	assert.Equal(t, 64, cfg.Chunking.Overlap)
	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.Equal(t, 0.3, cfg.Search.TextWeight)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestStorePathDefaultsUnderDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/engram"
	assert.Equal(t, filepath.Join("/data/engram", "engram.db"), cfg.StorePath())

	cfg.Storage.Path = "/custom/store.db"
	assert.Equal(t, "/custom/store.db", cfg.StorePath())
}
