package embed

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/config"
)

// Embedder turns texts into fixed-length sentence vectors, one per text,
// in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// New builds the configured embedder: provider client, then batching, then
// a circuit breaker around each batch call.
func New(cfg config.Embedding, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		base = NewOllamaEmbedder(cfg.Model, cfg.OllamaURL, cfg.Timeout())
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKeyEnv: cfg.APIKeyEnv,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	logger.Info("Embedding provider configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("batch_size", cfg.BatchSize))

	guarded := NewBreaker(base, "embedding-"+cfg.Provider, cfg.Breaker, logger)
	return NewBatched(guarded, cfg.BatchSize, logger), nil
}
