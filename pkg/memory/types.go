package memory

import (
	"context"
	"time"
)

// Source tags the origin of a chunk.
type Source string

const (
	SourceConversation Source = "conversation"
	SourceFile         Source = "file"
	SourceText         Source = "text"
)

// Chunk is the atomic retrievable unit. Content is immutable once stored;
// only the embedding model and updated_at change (during a reindex).
type Chunk struct {
	ID             int64                  `json:"id"`
	Source         Source                 `json:"source"`
	SourceID       string                 `json:"source_id"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	EmbeddingModel string                 `json:"embedding_model"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Message is a single conversation message fed to the conversation chunker.
type Message struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	FromSelf  bool      `json:"from_self"`
}

// SearchOptions configures a hybrid search. Zero-valued weights fall back to
// the service defaults; a nil MinScore falls back to DefaultMinScore.
type SearchOptions struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit,omitempty"`
	MinScore     *float64 `json:"min_score,omitempty"`
	Sources      []Source `json:"sources,omitempty"`
	SourceIDs    []string `json:"source_ids,omitempty"`
	VectorWeight float64  `json:"vector_weight,omitempty"`
	TextWeight   float64  `json:"text_weight,omitempty"`
}

// SearchResult is one ranked hit with its combined and per-signal scores.
type SearchResult struct {
	Chunk       Chunk   `json:"chunk"`
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`
}

// Stats summarizes the store.
type Stats struct {
	TotalChunks      int   `json:"total_chunks"`
	TotalSources     int   `json:"total_sources"`
	StorageSizeBytes int64 `json:"storage_size_bytes"`
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
}

// ArchivedConversation is a per-conversation archival summary.
type ArchivedConversation struct {
	ConversationID string    `json:"conversation_id"`
	ChunkCount     int       `json:"chunk_count"`
	LastCreatedAt  time.Time `json:"last_created_at"`
}

// VectorMatch is a nearest-neighbor hit. Distance is cosine distance in [0, 2].
type VectorMatch struct {
	ChunkID  int64
	Distance float64
}

// KeywordMatch is a lexical hit. Rank is the engine's raw relevance value;
// matches are always returned best-first regardless of the engine's sign
// convention.
type KeywordMatch struct {
	ChunkID int64
	Rank    float64
}

// VectorIndex is the approximate-nearest-neighbor capability over
// fixed-dimension vectors keyed by chunk id.
type VectorIndex interface {
	InsertVector(ctx context.Context, id int64, vec []float32) error
	SearchVectors(ctx context.Context, vec []float32, k int) ([]VectorMatch, error)
	DeleteVector(ctx context.Context, id int64) error
}

// KeywordIndex is the ranked lexical-search capability keyed by chunk id.
type KeywordIndex interface {
	InsertText(ctx context.Context, id int64, text string) error
	SearchKeywords(ctx context.Context, query string, k int) ([]KeywordMatch, error)
	DeleteText(ctx context.Context, id int64) error
}

// ChunkGetter hydrates chunk rows by id.
type ChunkGetter interface {
	GetChunk(ctx context.Context, id int64) (*Chunk, error)
}
