package memory

import (
	"context"
	"fmt"

	"engram/internal/observability"

	"github.com/rs/zerolog"
)

// Embedding is a computed vector together with the model that produced it.
// After a provider fallback the model differs from the configured one; the
// producing model is what gets recorded on the chunk and in the cache.
type Embedding struct {
	Vector []float32
	Model  string
}

// Embedder runs the full embedding pipeline: content-hash cache lookup,
// primary provider call, fallback to the local model on any provider error,
// and cache write-back.
type Embedder struct {
	primary Provider
	local   *LocalProvider
	cache   *EmbeddingCache
	events  *EventBus
	dim     int
	log     zerolog.Logger
}

// NewEmbedder wires the pipeline. When primary is the local provider itself
// no fallback step exists and local-model errors surface directly.
func NewEmbedder(primary Provider, local *LocalProvider, cache *EmbeddingCache, events *EventBus, log zerolog.Logger) *Embedder {
	return &Embedder{
		primary: primary,
		local:   local,
		cache:   cache,
		events:  events,
		dim:     primary.Dimension(),
		log:     log,
	}
}

// Model returns the configured primary model name.
func (e *Embedder) Model() string { return e.primary.Model() }

// Dimension returns the deployment's fixed vector dimension.
func (e *Embedder) Dimension() int { return e.dim }

// Embed returns the vector for text, consulting the cache first. Cache
// lookups use the configured model's key; vectors produced by the fallback
// are cached under the local model's key so a recovered remote provider is
// retried on the next miss.
func (e *Embedder) Embed(ctx context.Context, text string) (Embedding, error) {
	hash := hashContent(text)

	if vec, ok := e.cache.Get(ctx, hash, e.primary.Model()); ok {
		observability.RecordCacheHit()
		return Embedding{Vector: vec, Model: e.primary.Model()}, nil
	}
	observability.RecordCacheMiss()

	vec, err := e.primary.Embed(ctx, text)
	model := e.primary.Model()

	if err != nil && Provider(e.local) != e.primary {
		e.log.Warn().Err(err).Str("provider", model).Msg("Embedding provider failed, falling back to local model")
		observability.RecordProviderFallback(model)
		e.events.Emit(Event{
			Type:     EventProviderFallback,
			Provider: model,
			Reason:   err.Error(),
		})

		vec, err = e.local.Embed(ctx, text)
		model = e.local.Model()
	}
	if err != nil {
		return Embedding{}, err
	}

	if len(vec) != e.dim {
		return Embedding{}, fmt.Errorf("embedding dimension %d does not match configured %d", len(vec), e.dim)
	}

	e.cache.Put(ctx, hash, model, vec)
	return Embedding{Vector: vec, Model: model}, nil
}
