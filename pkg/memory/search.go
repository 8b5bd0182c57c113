package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// DefaultSearchLimit is applied when SearchOptions.Limit is zero.
	DefaultSearchLimit = 5
	// DefaultMinScore filters out weak combined matches unless overridden.
	DefaultMinScore = 0.3
	// DefaultVectorWeight and DefaultTextWeight are the hybrid blend used
	// when neither weight is set.
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3

	// candidateMultiplier widens both index queries past the requested
	// limit so post-merge filtering still has enough to choose from.
	candidateMultiplier = 4
)

// SearchEngine merges vector and keyword candidates into one ranked result
// list. Both index queries run in parallel; a failure in either leg fails the
// search.
type SearchEngine struct {
	vectors  VectorIndex
	keywords KeywordIndex
	chunks   ChunkGetter
	log      zerolog.Logger
}

func NewSearchEngine(vectors VectorIndex, keywords KeywordIndex, chunks ChunkGetter, log zerolog.Logger) *SearchEngine {
	return &SearchEngine{vectors: vectors, keywords: keywords, chunks: chunks, log: log}
}

type candidateScores struct {
	vectorScore float64
	textScore   float64
}

// Search runs both index legs with the query vector and sanitized query text,
// merges the candidate sets and hydrates the top results. Options are assumed
// to be normalized by the caller.
func (e *SearchEngine) Search(ctx context.Context, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	candidates := limit * candidateMultiplier

	var (
		wg         sync.WaitGroup
		vecMatches []VectorMatch
		kwMatches  []KeywordMatch
		vecErr     error
		kwErr      error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vecMatches, vecErr = e.vectors.SearchVectors(ctx, queryVec, candidates)
	}()
	go func() {
		defer wg.Done()
		ftsQuery := sanitizeFTSQuery(opts.Query)
		if ftsQuery == "" {
			return
		}
		kwMatches, kwErr = e.keywords.SearchKeywords(ctx, ftsQuery, candidates)
	}()
	wg.Wait()

	if vecErr != nil {
		return nil, fmt.Errorf("vector search: %w", vecErr)
	}
	if kwErr != nil {
		return nil, fmt.Errorf("keyword search: %w", kwErr)
	}

	scores := make(map[int64]*candidateScores, len(vecMatches)+len(kwMatches))
	for _, m := range vecMatches {
		vs := 1.0 - m.Distance
		if vs < 0 {
			vs = 0
		}
		scores[m.ChunkID] = &candidateScores{vectorScore: vs}
	}
	// Keyword matches arrive best-first; score by ordinal position so the
	// top match always gets 1.0 regardless of bm25's sign convention.
	for pos, m := range kwMatches {
		ts := 1.0 / float64(1+pos)
		if c, ok := scores[m.ChunkID]; ok {
			c.textScore = ts
		} else {
			scores[m.ChunkID] = &candidateScores{textScore: ts}
		}
	}

	minScore := DefaultMinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	type scored struct {
		id    int64
		c     *candidateScores
		final float64
	}
	ranked := make([]scored, 0, len(scores))
	for id, c := range scores {
		final := opts.VectorWeight*c.vectorScore + opts.TextWeight*c.textScore
		if final < minScore {
			continue
		}
		ranked = append(ranked, scored{id: id, c: c, final: final})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].final != ranked[j].final {
			return ranked[i].final > ranked[j].final
		}
		return ranked[i].id < ranked[j].id
	})

	results := make([]SearchResult, 0, limit)
	for _, r := range ranked {
		if len(results) >= limit {
			break
		}
		chunk, err := e.chunks.GetChunk(ctx, r.id)
		if err != nil {
			e.log.Warn().Err(err).Int64("chunk_id", r.id).Msg("skipping unhydratable search candidate")
			continue
		}
		if !matchesFilters(chunk, opts) {
			continue
		}
		results = append(results, SearchResult{
			Chunk:       *chunk,
			Score:       r.final,
			VectorScore: r.c.vectorScore,
			TextScore:   r.c.textScore,
		})
	}
	return results, nil
}

func matchesFilters(chunk *Chunk, opts SearchOptions) bool {
	if len(opts.Sources) > 0 {
		found := false
		for _, s := range opts.Sources {
			if chunk.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.SourceIDs) > 0 {
		found := false
		for _, id := range opts.SourceIDs {
			if chunk.SourceID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sanitizeFTSQuery rewrites free text into a safe FTS5 match expression:
// tokens are stripped of operator characters, quoted and OR-joined. Returns
// "" when nothing searchable remains.
func sanitizeFTSQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '(', ')', '*', ':', '^', '-', '+', '~', '{', '}', '[', ']':
			return ' '
		}
		return r
	}, query)

	var terms []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) < 2 {
			continue
		}
		terms = append(terms, `"`+tok+`"`)
	}
	return strings.Join(terms, " OR ")
}
