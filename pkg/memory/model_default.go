//go:build !onnx

package memory

// loadLocalModel returns the in-process model for builds without ONNX
// support: the deterministic feature-hashing embedder.
func loadLocalModel(dim int) (EmbeddingModel, error) {
	return newHashModel(dim), nil
}
