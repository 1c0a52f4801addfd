package embed

import (
	"context"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/breaker"
	"github.com/TobiSchelling/activelabel/internal/config"
)

// Breaker fails fast once the embedding service keeps erroring, instead of
// waiting out a timeout on every remaining batch.
type Breaker struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps e in a circuit breaker named name.
func NewBreaker(e Embedder, name string, cfg config.Breaker, logger *zap.Logger) *Breaker {
	return &Breaker{inner: e, cb: breaker.New(name, cfg, logger)}
}

// Embed implements Embedder.
func (b *Breaker) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return resp.([][]float64), nil
}
