package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/TobiSchelling/activelabel/internal/metrics"
)

// OpenAIConfig holds settings for an OpenAI-compatible embeddings endpoint,
// such as a text-embeddings-inference server hosting a sentence transformer.
type OpenAIConfig struct {
	APIKeyEnv string
	BaseURL   string
	Model     string
}

// OpenAIEmbedder calls /v1/embeddings through go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder. The API key may
// be empty for self-hosted servers that do not check it.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}
	clientCfg := openai.DefaultConfig(os.Getenv(cfg.APIKeyEnv))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
	}, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	model := string(e.model)
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "error").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("openai", model).Observe(time.Since(start).Seconds())
	metrics.EmbeddedTextsTotal.WithLabelValues("openai", model).Add(float64(len(texts)))

	// The API reports each vector's input position; do not rely on order.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float64, len(data))
	for i, d := range data {
		vec := make([]float64, len(d.Embedding))
		for k, v := range d.Embedding {
			vec[k] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("embedding API error %d: %w", reqErr.HTTPStatusCode, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("embedding request failed: %w", err)
}

// extractDetail pulls the "detail" field out of a JSON error body, the shape
// used by text-embeddings-inference and several hosted providers.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
