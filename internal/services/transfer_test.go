package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/transfer"
)

func TestExport_Markdown(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	f.save(t, "Export test memory", "TEST", "export")

	out, err := f.svc.Export(context.Background(), transfer.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Export test memory")
	assert.Contains(t, string(out), "TEST")
}

func TestExport_JSONOldestFirst(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	f.save(t, "first", "P")
	f.save(t, "second", "")
	deleted := f.save(t, "gone", "P")
	_, err := f.svc.Delete(context.Background(), deleted)
	require.NoError(t, err)

	out, err := f.svc.Export(context.Background(), transfer.JSON)
	require.NoError(t, err)
	var doc transfer.Document
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, 2, doc.Count)
	assert.Equal(t, "first", doc.Memories[0].Text)
	assert.Equal(t, "second", doc.Memories[1].Text)

	_, err = f.svc.Export(context.Background(), transfer.Text)
	assert.True(t, model.IsValidationError(err))
}

func TestImport_RoundTripIsIdempotent(t *testing.T) {
	src := newFixture(t, nil, testOptions())
	src.save(t, "alpha", "P", "x")
	src.save(t, "beta", "", "y", "z")
	odd := []string{"hello world\n", "  padded note", "## Heading\nbody of the note"}
	for _, text := range odd {
		src.save(t, text, "TEST")
	}
	ctx := context.Background()

	for _, format := range []transfer.Format{transfer.JSON, transfer.Markdown} {
		t.Run(string(format), func(t *testing.T) {
			doc, err := src.svc.Export(ctx, format)
			require.NoError(t, err)

			dst := newFixture(t, nil, testOptions())
			res, err := dst.svc.Import(ctx, format, doc, nil)
			require.NoError(t, err)
			assert.Equal(t, model.ImportResult{Imported: 5}, *res)

			page, err := dst.svc.List(ctx, model.ListRequest{Page: 1, Limit: 10, Project: strPtr("TEST")})
			require.NoError(t, err)
			got := make([]string, 0, len(page.Memories))
			for _, m := range page.Memories {
				got = append(got, m.Text)
			}
			assert.ElementsMatch(t, odd, got)

			page, err = dst.svc.List(ctx, model.ListRequest{Page: 1, Limit: 10})
			require.NoError(t, err)
			require.Len(t, page.Memories, 5)
			var beta, alpha *model.ScoredMemory
			for i := range page.Memories {
				switch page.Memories[i].Text {
				case "beta":
					beta = &page.Memories[i]
				case "alpha":
					alpha = &page.Memories[i]
				}
			}
			require.NotNil(t, beta)
			require.NotNil(t, alpha)
			assert.Nil(t, beta.Project)
			assert.Equal(t, []string{"y", "z"}, beta.Tags)
			assert.Equal(t, "P", *alpha.Project)

			// Re-importing an unchanged export creates nothing.
			res, err = src.svc.Import(ctx, format, doc, nil)
			require.NoError(t, err)
			assert.Equal(t, model.ImportResult{Duplicates: 5}, *res)
		})
	}
}

func TestImport_TextWithProjectOverrideAndFailures(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	f.emb.fail["bad line"] = errors.New("provider down")
	data := []byte("# notes\ngood line\nbad line\n\ngood line\nanother\n")

	res, err := f.svc.Import(context.Background(), transfer.Text, data, strPtr("NOTES"))
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{Imported: 2, Duplicates: 1, Failed: 1}, *res)

	page, err := f.svc.List(context.Background(), model.ListRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	for _, m := range page.Memories {
		assert.Equal(t, "NOTES", *m.Project)
		assert.Equal(t, []string{transfer.ImportedTag}, m.Tags)
	}
}

type batchEmbedder struct {
	*fakeEmbedder
	batches [][]string
	err     error
}

func (b *batchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, append([]string(nil), texts...))
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vectorLocked(t)
	}
	return out, nil
}

func TestImport_EmbedsNewUnitsInOneBatch(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	b := &batchEmbedder{fakeEmbedder: f.emb}
	f.svc.emb = b
	f.save(t, "known", "NOTES")

	data := []byte("known\none\ntwo\none\n")
	res, err := f.svc.Import(context.Background(), transfer.Text, data, strPtr("NOTES"))
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{Imported: 2, Duplicates: 2}, *res)

	require.Len(t, b.batches, 1)
	assert.Equal(t, []string{"one", "two"}, b.batches[0])
	assert.Zero(t, f.emb.callCount("one"))
	assert.Zero(t, f.emb.callCount("two"))

	recs, err := f.store.Memories().ScanActive(context.Background(), model.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestImport_BatchFailureFallsBackPerUnit(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	b := &batchEmbedder{fakeEmbedder: f.emb, err: errors.New("batch endpoint down")}
	f.svc.emb = b
	f.emb.fail["bad"] = errors.New("provider down")

	res, err := f.svc.Import(context.Background(), transfer.Text, []byte("good\nbad\nalso good\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{Imported: 2, Failed: 1}, *res)
	assert.Len(t, b.batches, 1)
	assert.Equal(t, 1, f.emb.callCount("good"))
	assert.Equal(t, 1, f.emb.callCount("also good"))
}

func TestImport_BatchVectorOfWrongDimensionFailsUnit(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	f.svc.emb = &batchEmbedder{fakeEmbedder: f.emb}
	f.emb.set("short", 1, 0)

	res, err := f.svc.Import(context.Background(), transfer.Text, []byte("short\nfine\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{Imported: 1, Failed: 1}, *res)
}

func TestImport_MalformedJSON(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	_, err := f.svc.Import(context.Background(), transfer.JSON, []byte("{oops"), nil)
	assert.True(t, model.IsValidationError(err))
}
