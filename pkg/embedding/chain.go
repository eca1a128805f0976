package embedding

import (
	"context"
	"errors"
	"fmt"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/log"
)

// Chain tries embedding backends in a fixed order. Fallback happens at
// most once per batch, and only for transient failure classes; anything
// else surfaces immediately so real bugs are not masked as environment
// trouble. All vectors are fitted to the configured index dimension.
type Chain struct {
	providers []Provider
	dims      int
}

// NewChain builds a fallback chain. The first provider is the primary;
// the order never changes at runtime.
func NewChain(dims int, providers ...Provider) *Chain {
	return &Chain{providers: providers, dims: dims}
}

// Dimensions returns the index-wide vector dimension.
func (c *Chain) Dimensions() int {
	return c.dims
}

// Backends lists the backend names in fallback order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// EmbedBatch embeds texts with the first backend that succeeds and
// reports which backend served the batch. If every eligible backend
// fails the error wraps model.ErrEmbeddingUnavailable.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	if len(texts) == 0 {
		return nil, "", nil
	}

	var lastErr error
	for i, p := range c.providers {
		vectors, err := p.EmbedBatch(ctx, texts)
		if err == nil {
			return c.fit(vectors), p.Name(), nil
		}
		lastErr = err

		var be *BackendError
		if !errors.As(err, &be) || !be.Transient() {
			return nil, "", fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, err)
		}
		if i+1 < len(c.providers) {
			log.Warnf("[EmbeddingChain] backend %s failed (%v), falling back to %s", p.Name(), err, c.providers[i+1].Name())
		}
	}
	return nil, "", fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, lastErr)
}

// EmbedWith embeds texts with one named backend and no fallback. Used
// at query time, where the namespace pins the backend that populated
// the corpus.
func (c *Chain) EmbedWith(ctx context.Context, backend string, texts []string) ([][]float32, error) {
	for _, p := range c.providers {
		if p.Name() != backend {
			continue
		}
		vectors, err := p.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, err)
		}
		return c.fit(vectors), nil
	}
	return nil, fmt.Errorf("%w: backend %q is not configured", model.ErrBackendMismatch, backend)
}

func (c *Chain) fit(vectors [][]float32) [][]float32 {
	for i, v := range vectors {
		vectors[i] = FitDimensions(v, c.dims)
	}
	return vectors
}
