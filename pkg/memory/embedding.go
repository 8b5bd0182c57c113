package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultDimension is the embedding dimension every provider in a deployment
// must produce. Mixing dimensions across providers is not supported.
const DefaultDimension = 384

// Provider produces a fixed-dimension vector for a text string.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// OpenAIProvider generates embeddings through the OpenAI API.
type OpenAIProvider struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider creates an OpenAI embedding provider constrained to the
// given output dimension.
func NewOpenAIProvider(apiKey, model string, dim int) *OpenAIProvider {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		dim:    dim,
	}
}

func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: openai.Int(int64(p.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings call: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings call: empty response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// GeminiProvider generates embeddings through the Gemini REST API.
type GeminiProvider struct {
	apiKey     string
	model      string
	dim        int
	endpoint   string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini embedding provider constrained to the
// given output dimension.
func NewGeminiProvider(apiKey, model string, dim int) *GeminiProvider {
	if model == "" {
		model = "text-embedding-004"
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &GeminiProvider{
		apiKey:   apiKey,
		model:    model,
		dim:      dim,
		endpoint: "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *GeminiProvider) Model() string  { return p.model }
func (p *GeminiProvider) Dimension() int { return p.dim }

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model": "models/" + p.model,
		"content": map[string]interface{}{
			"parts": []map[string]string{{"text": text}},
		},
		"outputDimensionality": p.dim,
	}

	bodyJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", p.endpoint, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini embeddings call: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embeddings call: empty response")
	}

	return result.Embedding.Values, nil
}
