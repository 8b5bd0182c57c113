package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedup(t *testing.T, primary Provider) (*Deduplicator, *Store) {
	t.Helper()
	s := newTestStore(t)
	cache, err := newEmbeddingCache(s.db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	local := NewLocalProvider(primary.Dimension())
	embedder := NewEmbedder(primary, local, cache, NewEventBus(), zerolog.Nop())
	return NewDeduplicator(s, embedder, zerolog.Nop()), s
}

func TestDedupExactMatch(t *testing.T) {
	primary := newMockProvider(4)
	d, s := newTestDedup(t, primary)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, SourceText, "note", "identical content", nil, "m", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	decision := d.Check(ctx, SourceText, "note", "identical content")
	assert.True(t, decision.Duplicate)
	// The exact shortcut never embeds.
	assert.Zero(t, primary.calls)
}

func TestDedupNearDuplicateSameOrigin(t *testing.T) {
	primary := newMockProvider(4)
	primary.overrides["stored text"] = []float32{1, 0, 0, 0}
	primary.overrides["almost the same"] = []float32{0.999, 0.04, 0, 0}
	d, s := newTestDedup(t, primary)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, SourceText, "note", "stored text", nil, "m", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	decision := d.Check(ctx, SourceText, "note", "almost the same")
	assert.True(t, decision.Duplicate)
}

func TestDedupNearDuplicateDifferentOriginIsKept(t *testing.T) {
	primary := newMockProvider(4)
	primary.overrides["almost the same"] = []float32{0.999, 0.04, 0, 0}
	d, s := newTestDedup(t, primary)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, SourceFile, "/other.md", "stored text", nil, "m", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	decision := d.Check(ctx, SourceText, "note", "almost the same")
	assert.False(t, decision.Duplicate)
	require.NotNil(t, decision.Embedding)
}

func TestDedupDissimilarContentIsKept(t *testing.T) {
	primary := newMockProvider(4)
	primary.overrides["unrelated"] = []float32{0, 0, 1, 0}
	d, s := newTestDedup(t, primary)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, SourceText, "note", "stored text", nil, "m", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	decision := d.Check(ctx, SourceText, "note", "unrelated")
	assert.False(t, decision.Duplicate)
	require.NotNil(t, decision.Embedding)
	assert.Equal(t, []float32{0, 0, 1, 0}, decision.Embedding.Vector)
}

func TestDedupFailsOpenOnEmbeddingError(t *testing.T) {
	// A failing primary whose dimension the local fallback cannot satisfy
	// makes the whole embedding pipeline error out. Dedup must fail open.
	s := newTestStore(t)
	cache, err := newEmbeddingCache(s.db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	primary := &failingProvider{dim: 8}
	local := NewLocalProvider(4)
	embedder := NewEmbedder(primary, local, cache, NewEventBus(), zerolog.Nop())
	d := NewDeduplicator(s, embedder, zerolog.Nop())

	decision := d.Check(context.Background(), SourceText, "note", "anything")
	assert.False(t, decision.Duplicate)
	assert.Nil(t, decision.Embedding)
}

// failingProvider mimics a misconfigured deployment.
type failingProvider struct{ dim int }

func (f *failingProvider) Model() string  { return "broken" }
func (f *failingProvider) Dimension() int { return f.dim }
func (f *failingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("permanently broken")
}
