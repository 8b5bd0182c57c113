package config

import (
	"path/filepath"
)

// Config represents the main engram configuration
type Config struct {
	// Storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Embedding
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Chunking
	Chunking ChunkingConfig `json:"chunking" mapstructure:"chunking"`

	// Search
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StorageConfig holds store file settings
type StorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
	// CacheTTLHours bounds embedding cache entry age. Zero disables pruning.
	CacheTTLHours int `json:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	// MaintenanceSchedule is a cron expression for periodic housekeeping.
	MaintenanceSchedule string `json:"maintenance_schedule" mapstructure:"maintenance_schedule"`
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // local, openai, gemini
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// ChunkingConfig holds chunker settings in approximate tokens
type ChunkingConfig struct {
	Size    int `json:"size" mapstructure:"size"`
	Overlap int `json:"overlap" mapstructure:"overlap"`
}

// SearchConfig holds hybrid search defaults
type SearchConfig struct {
	VectorWeight float64 `json:"vector_weight" mapstructure:"vector_weight"`
	TextWeight   float64 `json:"text_weight" mapstructure:"text_weight"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			CacheTTLHours:       24 * 30,
			MaintenanceSchedule: "0 * * * *",
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 384,
		},
		Chunking: ChunkingConfig{
			Size:    512,
			Overlap: 64,
		},
		Search: SearchConfig{
			VectorWeight: 0.7,
			TextWeight:   0.3,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// StorePath returns the store file location, defaulting under DataDir.
func (c *Config) StorePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "engram.db")
}
