package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
)

// EmbeddingCache maps (content hash, model) to a previously computed vector.
// Entries persist in the store file; a ristretto layer in front keeps hot
// entries off the database read path. The cache is shared across all sources:
// identical text yields one entry regardless of which chunk referenced it.
type EmbeddingCache struct {
	db  *sql.DB
	hot *ristretto.Cache
	log zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func newEmbeddingCache(db *sql.DB, log zerolog.Logger) (*EmbeddingCache, error) {
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB of hot vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create hot cache: %w", err)
	}
	return &EmbeddingCache{db: db, hot: hot, log: log}, nil
}

func cacheKey(contentHash, model string) string {
	return contentHash + ":" + model
}

// Get returns the cached vector for (contentHash, model), or ok=false.
func (c *EmbeddingCache) Get(ctx context.Context, contentHash, model string) ([]float32, bool) {
	key := cacheKey(contentHash, model)
	if v, ok := c.hot.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			c.hits.Add(1)
			return vec, true
		}
	}

	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT embedding FROM embedding_cache WHERE content_hash = ? AND model = ?",
		contentHash, model,
	).Scan(&blob)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn().Err(err).Msg("Embedding cache lookup failed")
		}
		c.misses.Add(1)
		return nil, false
	}

	vec, err := decodeVector(blob)
	if err != nil {
		c.log.Warn().Err(err).Str("hash", contentHash).Msg("Corrupt cached embedding, ignoring")
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.hot.Set(key, vec, int64(len(blob)))
	return vec, true
}

// Put stores a vector under (contentHash, model). Cache write failures are
// logged, never surfaced: a cold cache only costs a recomputation.
func (c *EmbeddingCache) Put(ctx context.Context, contentHash, model string, vec []float32) {
	blob := encodeVector(vec)
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embedding_cache (content_hash, model, embedding, dimension, created_at) VALUES (?, ?, ?, ?, ?)",
		contentHash, model, blob, len(vec), time.Now().Unix(),
	)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist embedding cache entry")
		return
	}
	c.hot.Set(cacheKey(contentHash, model), vec, int64(len(blob)))
}

// Prune removes persisted entries older than ttl and returns the count.
func (c *EmbeddingCache) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	res, err := c.db.ExecContext(ctx, "DELETE FROM embedding_cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune embedding cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.hot.Clear()
	}
	return n, nil
}

// Reset drops the hot layer and zeroes the counters after the persisted
// table has been cleared.
func (c *EmbeddingCache) Reset() {
	c.hot.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Counters reports process-lifetime hit/miss counts.
func (c *EmbeddingCache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the hot cache.
func (c *EmbeddingCache) Close() {
	c.hot.Close()
}
