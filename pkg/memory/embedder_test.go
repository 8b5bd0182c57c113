package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider is a controllable Provider for pipeline tests.
type mockProvider struct {
	name      string
	dim       int
	err       error
	calls     int
	overrides map[string][]float32
}

func newMockProvider(dim int) *mockProvider {
	return &mockProvider{name: "mock-remote", dim: dim, overrides: make(map[string][]float32)}
}

func (m *mockProvider) Model() string  { return m.name }
func (m *mockProvider) Dimension() int { return m.dim }

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if vec, ok := m.overrides[text]; ok {
		return vec, nil
	}
	vec := make([]float32, m.dim)
	vec[0] = 1
	return vec, nil
}

func newTestEmbedder(t *testing.T, primary Provider) (*Embedder, *EventBus) {
	t.Helper()
	s := newTestStore(t)
	cache, err := newEmbeddingCache(s.db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	events := NewEventBus()
	local := NewLocalProvider(primary.Dimension())
	return NewEmbedder(primary, local, cache, events, zerolog.Nop()), events
}

func TestEmbedCachesByContentHash(t *testing.T) {
	primary := newMockProvider(4)
	e, _ := newTestEmbedder(t, primary)
	ctx := context.Background()

	first, err := e.Embed(ctx, "some text")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, "mock-remote", first.Model)

	// Drop the hot layer so the second lookup exercises the persistent tier.
	e.cache.hot.Clear()

	second, err := e.Embed(ctx, "some text")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, first.Vector, second.Vector)

	hits, misses := e.cache.Counters()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEmbedFallsBackToLocalModel(t *testing.T) {
	primary := newMockProvider(DefaultDimension)
	primary.err = errors.New("remote unavailable")
	e, events := newTestEmbedder(t, primary)

	var got []Event
	events.Subscribe(func(ev Event) { got = append(got, ev) })

	emb, err := e.Embed(context.Background(), "offline text")
	require.NoError(t, err)
	assert.Equal(t, LocalModelName, emb.Model)
	assert.Len(t, emb.Vector, DefaultDimension)

	require.Len(t, got, 1)
	assert.Equal(t, EventProviderFallback, got[0].Type)
	assert.Equal(t, "mock-remote", got[0].Provider)
	assert.Equal(t, "remote unavailable", got[0].Reason)
}

func TestEmbedFallbackDoesNotPoisonPrimaryCache(t *testing.T) {
	primary := newMockProvider(DefaultDimension)
	primary.err = errors.New("remote unavailable")
	e, _ := newTestEmbedder(t, primary)
	ctx := context.Background()

	_, err := e.Embed(ctx, "text")
	require.NoError(t, err)

	// Primary recovers; the next embed must retry it instead of serving the
	// locally produced vector from the cache.
	primary.err = nil
	emb, err := e.Embed(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, "mock-remote", emb.Model)
	assert.Equal(t, 2, primary.calls)
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	primary := newMockProvider(4)
	primary.overrides["bad"] = []float32{1, 2}
	e, _ := newTestEmbedder(t, primary)

	_, err := e.Embed(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestLocalProviderIsDeterministic(t *testing.T) {
	p := NewLocalProvider(DefaultDimension)
	ctx := context.Background()

	a, err := p.Embed(ctx, "deterministic input")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "deterministic input")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)

	// Related texts should land closer than unrelated ones.
	c, err := p.Embed(ctx, "deterministic inputs")
	require.NoError(t, err)
	d, err := p.Embed(ctx, "completely unrelated zebra talk")
	require.NoError(t, err)
	assert.Greater(t, cosineSimilarity(a, c), cosineSimilarity(a, d))
}

func TestCachePruneRemovesOldEntries(t *testing.T) {
	s := newTestStore(t)
	cache, err := newEmbeddingCache(s.db, zerolog.Nop())
	require.NoError(t, err)
	defer cache.Close()
	ctx := context.Background()

	cache.Put(ctx, "hash1", "m", []float32{1, 0})
	_, err = s.db.Exec("UPDATE embedding_cache SET created_at = 0 WHERE content_hash = 'hash1'")
	require.NoError(t, err)
	cache.Put(ctx, "hash2", "m", []float32{0, 1})

	n, err := cache.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := cache.Get(ctx, "hash2", "m")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "hash1", "m")
	assert.False(t, ok)
}

func TestVectorCodecRoundtrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
