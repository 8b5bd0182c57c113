package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// EmbeddingModel is the in-process inference capability behind the local
// provider.
type EmbeddingModel interface {
	Infer(text string) ([]float32, error)
}

// LocalModelName identifies vectors produced by the built-in local model.
const LocalModelName = "local-minilm"

// LocalProvider wraps an in-process embedding model. The model is loaded
// lazily exactly once per provider; concurrent first-time callers share the
// same in-flight load.
type LocalProvider struct {
	name   string
	dim    int
	loader func() (EmbeddingModel, error)

	once    sync.Once
	model   EmbeddingModel
	loadErr error
}

// NewLocalProvider creates the local provider using the default in-process
// model loader for this build.
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalProvider{
		name:   LocalModelName,
		dim:    dim,
		loader: func() (EmbeddingModel, error) { return loadLocalModel(dim) },
	}
}

func (p *LocalProvider) Model() string  { return p.name }
func (p *LocalProvider) Dimension() int { return p.dim }

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.once.Do(func() {
		p.model, p.loadErr = p.loader()
	})
	if p.loadErr != nil {
		return nil, fmt.Errorf("load local model: %w", p.loadErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.model.Infer(text)
}

// Close releases the loaded model, if any.
func (p *LocalProvider) Close() error {
	if closer, ok := p.model.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// hashModel is a deterministic feature-hashing embedder. Each whitespace
// token (and its character trigrams) is hashed into a bucket of the output
// vector; the result is L2-normalized. It has no semantic understanding but
// gives stable, well-distributed vectors with the configured dimension, which
// keeps the pipeline functional when no ONNX runtime is available.
type hashModel struct {
	dim int
}

func newHashModel(dim int) *hashModel {
	return &hashModel{dim: dim}
}

func (m *hashModel) Infer(text string) ([]float32, error) {
	vec := make([]float32, m.dim)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]{}")
		if tok == "" {
			continue
		}
		m.accumulate(vec, tok, 1.0)
		for i := 0; i+3 <= len(tok); i++ {
			m.accumulate(vec, tok[i:i+3], 0.5)
		}
	}

	return normalize(vec), nil
}

func (m *hashModel) accumulate(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(m.dim))
	sign := float32(1)
	if (sum>>63)&1 == 1 {
		sign = -1
	}
	vec[bucket] += sign * weight
}

// normalize scales a vector to unit length. Zero vectors are returned as is.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
