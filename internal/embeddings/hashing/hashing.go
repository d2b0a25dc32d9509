// Package hashing embeds text locally by hashing word tokens into a fixed
// number of signed buckets. It needs no model or network and is the default
// for local deployments.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension matches the vector length of the small sentence models.
const DefaultDimension = 384

type Provider struct{ dim int }

// New returns a provider producing dim-length vectors.
func New(dim int) *Provider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Provider{dim: dim}
}

func (p *Provider) Dimension() int { return p.dim }

// Embed maps each lowercased token and adjacent token pair to a bucket with
// a hash-derived sign, then L2-normalises. Text without tokens yields the
// zero vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, p.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		p.add(vec, tok, 1)
		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (p *Provider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % uint64(p.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// HealthPing implements health.HealthPinger; the provider has no
// external dependencies.
func (p *Provider) HealthPing(ctx context.Context) error { return ctx.Err() }

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
