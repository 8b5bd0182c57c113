package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains the shape of the config file before unmarshaling.
const configSchema = `{
	"type": "object",
	"properties": {
		"storage": {
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"cache_ttl_hours": {"type": "integer", "minimum": 0},
				"maintenance_schedule": {"type": "string"}
			}
		},
		"embedding": {
			"type": "object",
			"properties": {
				"provider": {"type": "string", "enum": ["local", "openai", "gemini"]},
				"model": {"type": "string"},
				"api_key": {"type": "string"},
				"dimension": {"type": "integer", "minimum": 1}
			}
		},
		"chunking": {
			"type": "object",
			"properties": {
				"size": {"type": "integer", "minimum": 1},
				"overlap": {"type": "integer", "minimum": 0}
			}
		},
		"search": {
			"type": "object",
			"properties": {
				"vector_weight": {"type": "number", "minimum": 0},
				"text_weight": {"type": "number", "minimum": 0}
			}
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
				"file": {"type": "string"},
				"console": {"type": "boolean"},
				"pretty": {"type": "boolean"},
				"redaction": {"type": "boolean"}
			}
		},
		"data_dir": {"type": "string"}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// ValidateSchema validates raw config file bytes against the JSON schema.
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Provider {
	case "", "local":
	case "openai", "gemini":
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("%s provider requires an API key (set embedding.api_key or ENGRAM_API_KEY)", cfg.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Chunking.Overlap >= cfg.Chunking.Size && cfg.Chunking.Size > 0 {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.Chunking.Overlap, cfg.Chunking.Size)
	}

	if cfg.Search.VectorWeight == 0 && cfg.Search.TextWeight == 0 {
		return fmt.Errorf("at least one of vector_weight and text_weight must be positive")
	}

	return nil
}
