//go:build onnx

package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNX builds run a sentence-transformer model (all-MiniLM-L6-v2 by default)
// through onnxruntime. The model, tokenizer and shared library locations come
// from the environment:
//
//	ENGRAM_ONNX_MODEL      path to model.onnx
//	ENGRAM_ONNX_TOKENIZER  path to tokenizer.json
//	ENGRAM_ONNX_LIBRARY    path to libonnxruntime (optional)
const onnxSequenceLength = 128

func loadLocalModel(dim int) (EmbeddingModel, error) {
	modelPath := os.Getenv("ENGRAM_ONNX_MODEL")
	tokenizerPath := os.Getenv("ENGRAM_ONNX_TOKENIZER")
	if modelPath == "" || tokenizerPath == "" {
		return nil, fmt.Errorf("ENGRAM_ONNX_MODEL and ENGRAM_ONNX_TOKENIZER must be set")
	}

	if lib := os.Getenv("ENGRAM_ONNX_LIBRARY"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	vocab, err := loadWordPieceVocab(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxModel{session: session, vocab: vocab, dim: dim}, nil
}

type onnxModel struct {
	session *ort.DynamicAdvancedSession
	vocab   map[string]int
	dim     int
}

const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

func (m *onnxModel) Infer(text string) ([]float32, error) {
	ids := m.tokenize(text)

	inputIDs := make([]int64, onnxSequenceLength)
	attention := make([]int64, onnxSequenceLength)
	tokenTypes := make([]int64, onnxSequenceLength)

	inputIDs[0] = clsToken
	attention[0] = 1

	n := len(ids)
	if n > onnxSequenceLength-2 {
		n = onnxSequenceLength - 2
	}
	for i := 0; i < n; i++ {
		inputIDs[i+1] = ids[i]
		attention[i+1] = 1
	}
	inputIDs[n+1] = sepToken
	attention[n+1] = 1

	shape := ort.NewShape(1, int64(onnxSequenceLength))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typesTensor, err := ort.NewTensor(shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	data := out.GetData()
	outShape := out.GetShape()

	// [1, dim] outputs are already pooled; [1, seq, dim] outputs need
	// attention-masked mean pooling.
	switch len(outShape) {
	case 2:
		if len(data) < m.dim {
			return nil, fmt.Errorf("output dimension %d below expected %d", len(data), m.dim)
		}
		vec := make([]float32, m.dim)
		copy(vec, data[:m.dim])
		return normalize(vec), nil
	case 3:
		seqLen := int(outShape[1])
		hidden := int(outShape[2])
		if hidden != m.dim {
			return nil, fmt.Errorf("hidden size %d does not match dimension %d", hidden, m.dim)
		}
		vec := make([]float32, m.dim)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			for j := 0; j < hidden; j++ {
				vec[j] += data[i*hidden+j]
			}
		}
		if attended > 0 {
			for j := range vec {
				vec[j] /= attended
			}
		}
		return normalize(vec), nil
	default:
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}
}

func (m *onnxModel) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

// tokenize performs lowercased WordPiece tokenization with greedy
// longest-prefix matching.
func (m *onnxModel) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := m.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		start := 0
		for start < len(word) {
			end := len(word)
			matched := false
			for end > start {
				piece := word[start:end]
				if start > 0 {
					piece = "##" + piece
				}
				if id, ok := m.vocab[piece]; ok {
					ids = append(ids, int64(id))
					start = end
					matched = true
					break
				}
				end--
			}
			if !matched {
				ids = append(ids, unkToken)
				start++
			}
		}
	}
	return ids
}

func loadWordPieceVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizer struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizer); err != nil {
		return nil, err
	}
	if len(tokenizer.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocab is empty")
	}
	return tokenizer.Model.Vocab, nil
}
