package embed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Batched splits large inputs into provider-sized requests and checks that
// every text came back with a vector of the same dimension.
type Batched struct {
	inner  Embedder
	size   int
	logger *zap.Logger
}

// NewBatched wraps e so that each call sends at most size texts.
func NewBatched(e Embedder, size int, logger *zap.Logger) *Batched {
	if size <= 0 {
		size = 64
	}
	return &Batched{inner: e, size: size, logger: logger}
}

// Embed implements Embedder.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	dims := -1

	for start := 0; start < len(texts); start += b.size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+b.size, len(texts))

		vecs, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding texts %d-%d: got %d vectors", start, end-1, len(vecs))
		}
		for i, v := range vecs {
			if dims == -1 {
				dims = len(v)
			}
			if len(v) == 0 || len(v) != dims {
				return nil, fmt.Errorf("text %d: vector has %d dimensions, want %d", start+i, len(v), dims)
			}
		}
		out = append(out, vecs...)

		b.logger.Debug("Embedded batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(texts)))
	}
	return out, nil
}
