package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thianvelaz/Cognio/internal/model"
)

type fixedProvider struct {
	vec   []float32
	err   error
	calls int
}

func (f *fixedProvider) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type batchProvider struct {
	fixedProvider
	batches [][]string
	short   bool
}

func (b *batchProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, texts)
	n := len(texts)
	if b.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = b.vec
	}
	return out, nil
}

func TestCheckDimension(t *testing.T) {
	require.NoError(t, CheckDimension([]float32{1, 2, 3}, 3))

	err := CheckDimension([]float32{1, 2}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrProvider))
	assert.True(t, model.IsProviderError(err))
}

func TestEmbedBatchElementWise(t *testing.T) {
	p := &fixedProvider{vec: []float32{1, 0}}
	out, err := EmbedBatch(context.Background(), p, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 3, p.calls)

	p.err = errors.New("boom")
	_, err = EmbedBatch(context.Background(), p, []string{"a"})
	require.Error(t, err)
}

func TestEmbedBatchUsesNativeBatch(t *testing.T) {
	b := &batchProvider{fixedProvider: fixedProvider{vec: []float32{1, 0}}}
	out, err := EmbedBatch(context.Background(), b, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, [][]string{{"a", "b"}}, b.batches)
	assert.Zero(t, b.calls)

	b.short = true
	_, err = EmbedBatch(context.Background(), b, []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, model.IsProviderError(err))
}

func TestProviderHealthChecker(t *testing.T) {
	p := &fixedProvider{vec: []float32{1}}
	hc := NewProviderHealthChecker(p, zerolog.Nop(), time.Second)
	assert.False(t, hc.IsHealthy())

	hc.Check(context.Background())
	assert.True(t, hc.IsHealthy())

	p.err = errors.New("down")
	hc.Check(context.Background())
	assert.False(t, hc.IsHealthy())

	p.err = nil
	p.vec = nil
	hc.Check(context.Background())
	assert.False(t, hc.IsHealthy())
}
