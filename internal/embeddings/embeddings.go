// Package embeddings defines the text-to-vector provider contract and the
// helpers shared by its implementations.
package embeddings

import (
	"context"
	"fmt"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Provider produces vector representations for text. Identical input must
// yield identical output.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchProvider is implemented by providers with a native batch endpoint.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatch embeds texts element-wise, using the provider's batch call
// when it has one.
func EmbedBatch(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	if bp, ok := p.(BatchProvider); ok {
		out, err := bp.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, &model.ProviderError{Op: "embed batch", Err: fmt.Errorf("got %d vectors for %d texts", len(out), len(texts))}
		}
		return out, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CheckDimension fails unless vec has exactly dim components.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return &model.ProviderError{Op: "embed", Err: fmt.Errorf("expected %d dimensions, got %d", dim, len(vec))}
	}
	return nil
}
