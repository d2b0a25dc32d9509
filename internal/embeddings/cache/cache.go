// Package cache memoises embeddings in a bounded ristretto cache keyed by
// the text's content hash.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/Thianvelaz/Cognio/internal/embeddings"
	"github.com/Thianvelaz/Cognio/internal/health"
	"github.com/Thianvelaz/Cognio/internal/model"
)

// Provider serves repeated texts from memory and delegates misses.
type Provider struct {
	inner embeddings.Provider
	cache *ristretto.Cache
}

// Wrap returns a caching provider holding at most size vectors.
func Wrap(inner embeddings.Provider, size int) (*Provider, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{inner: inner, cache: c}, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := model.TextHash(text)
	if v, ok := p.cache.Get(key); ok {
		return cloneVec(v.([]float32)), nil
	}
	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, cloneVec(vec), 1)
	return vec, nil
}

// EmbedBatch serves cached texts and embeds the rest in one call to the
// wrapped provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var misses []string
	for i, t := range texts {
		if v, ok := p.cache.Get(model.TextHash(t)); ok {
			out[i] = cloneVec(v.([]float32))
			continue
		}
		missIdx = append(missIdx, i)
		misses = append(misses, t)
	}
	if len(misses) == 0 {
		return out, nil
	}
	vecs, err := embeddings.EmbedBatch(ctx, p.inner, misses)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		p.cache.Set(model.TextHash(misses[j]), cloneVec(vecs[j]), 1)
		out[i] = vecs[j]
	}
	return out, nil
}

// Wait blocks until buffered writes are visible to Get.
func (p *Provider) Wait() { p.cache.Wait() }

// Close releases the cache's background goroutines.
func (p *Provider) Close() { p.cache.Close() }

// HealthPing forwards to the wrapped provider.
func (p *Provider) HealthPing(ctx context.Context) error {
	if hp, ok := p.inner.(health.HealthPinger); ok {
		return hp.HealthPing(ctx)
	}
	_, err := p.inner.Embed(ctx, "health-check")
	return err
}

func cloneVec(v []float32) []float32 {
	return append([]float32(nil), v...)
}
