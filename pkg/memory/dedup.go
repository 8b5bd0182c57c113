package memory

import (
	"context"

	"github.com/rs/zerolog"
)

// DedupThreshold is the cosine similarity above which a candidate chunk from
// the same origin is treated as a duplicate of an existing one.
const DedupThreshold = 0.95

// Deduplicator decides whether a chunk about to be indexed is redundant.
// Every check fails open: a store or embedding hiccup must never block
// ingestion, so errors are logged and the chunk is treated as novel.
type Deduplicator struct {
	store    *Store
	embedder *Embedder
	log      zerolog.Logger
}

func NewDeduplicator(store *Store, embedder *Embedder, log zerolog.Logger) *Deduplicator {
	return &Deduplicator{store: store, embedder: embedder, log: log}
}

// dedupDecision carries the result of a duplicate check. When the chunk is
// novel the embedding computed for the check is returned so the caller does
// not embed twice.
type dedupDecision struct {
	Duplicate bool
	Embedding *Embedding
}

// Check looks for an exact (source, sourceID, content) match first, then for
// a near neighbor above DedupThreshold from the same origin.
func (d *Deduplicator) Check(ctx context.Context, source Source, sourceID, content string) dedupDecision {
	exists, err := d.store.ExistsExact(ctx, source, sourceID, content)
	if err != nil {
		d.log.Warn().Err(err).Msg("exact duplicate check failed, indexing anyway")
	} else if exists {
		return dedupDecision{Duplicate: true}
	}

	emb, err := d.embedder.Embed(ctx, content)
	if err != nil {
		d.log.Warn().Err(err).Msg("dedup embedding failed, indexing anyway")
		return dedupDecision{}
	}

	matches, err := d.store.SearchVectors(ctx, emb.Vector, 1)
	if err != nil {
		d.log.Warn().Err(err).Msg("dedup neighbor lookup failed, indexing anyway")
		return dedupDecision{Embedding: &emb}
	}
	if len(matches) == 0 {
		return dedupDecision{Embedding: &emb}
	}

	// Cosine distance to similarity.
	similarity := 1.0 - matches[0].Distance
	if similarity <= DedupThreshold {
		return dedupDecision{Embedding: &emb}
	}

	nSource, nSourceID, err := d.store.ChunkOrigin(ctx, matches[0].ChunkID)
	if err != nil {
		d.log.Warn().Err(err).Msg("dedup origin lookup failed, indexing anyway")
		return dedupDecision{Embedding: &emb}
	}
	if nSource == source && nSourceID == sourceID {
		d.log.Debug().
			Int64("neighbor_id", matches[0].ChunkID).
			Float64("similarity", similarity).
			Msg("skipping near-duplicate chunk")
		return dedupDecision{Duplicate: true}
	}
	return dedupDecision{Embedding: &emb}
}
