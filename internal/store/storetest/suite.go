package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store"
)

// Dim is the embedding length used by the suite.
const Dim = 8

// Run exercises a compliance suite against a store.Store implementation.
// makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, makeStore(t)) })
	t.Run("DedupConflict", func(t *testing.T) { testDedupConflict(t, makeStore(t)) })
	t.Run("Archive", func(t *testing.T) { testArchive(t, makeStore(t)) })
	t.Run("ScanFilters", func(t *testing.T) { testScanFilters(t, makeStore(t)) })
	t.Run("ScanOrdering", func(t *testing.T) { testScanOrdering(t, makeStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, makeStore(t)) })
	t.Run("RekeyOnScopeChange", func(t *testing.T) { testRekeyOnScopeChange(t, makeStore(t)) })
}

// NewRecord builds a record with a deterministic embedding.
func NewRecord(text string, project *string, createdAt int64, tags ...string) *model.MemoryRecord {
	emb := make([]float32, Dim)
	for i := range emb {
		emb[i] = float32(len(text)%7+i) / 10
	}
	hash := model.TextHash(text)
	return &model.MemoryRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Text:      text,
		TextHash:  hash,
		DedupKey:  hash,
		Embedding: emb,
		Project:   project,
		Tags:      model.NormalizeTags(tags),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := NewRecord("Python is a programming language", strPtr("TEST"), 1000, "python", "test")
	require.NoError(t, s.Memories().Create(ctx, rec))

	got, err := s.Memories().GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, rec.TextHash, got.TextHash)
	assert.Equal(t, "TEST", got.ProjectName())
	assert.Equal(t, []string{"python", "test"}, got.Tags)
	assert.Equal(t, int64(1000), got.CreatedAt)
	assert.False(t, got.Archived)
	require.Len(t, got.Embedding, Dim)
	assert.InDeltaSlice(t, rec.Embedding, got.Embedding, 1e-6)

	unscoped := NewRecord("no project", nil, 1001)
	require.NoError(t, s.Memories().Create(ctx, unscoped))
	got, err = s.Memories().GetByID(ctx, unscoped.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Project)
	assert.Empty(t, got.Tags)

	_, err = s.Memories().GetByID(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, model.ErrNotFound), "unknown id: %v", err)
}

func testDedupConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := NewRecord("Duplicate text", strPtr("TEST"), 1000)
	require.NoError(t, s.Memories().Create(ctx, first))

	found, err := s.Memories().FindActiveByDedupKey(ctx, first.DedupKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	second := NewRecord("Duplicate text", strPtr("TEST"), 1001)
	err = s.Memories().Create(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict), "expected conflict, got %v", err)

	// Once archived, the key is free again but the old id stays retired.
	ok, err := s.Memories().Archive(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Memories().FindActiveByDedupKey(ctx, first.DedupKey)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	require.NoError(t, s.Memories().Create(ctx, second))
	found, err = s.Memories().FindActiveByDedupKey(ctx, first.DedupKey)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func testArchive(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := NewRecord("Memory to delete", strPtr("TEST"), 1000)
	require.NoError(t, s.Memories().Create(ctx, rec))

	ok, err := s.Memories().Archive(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Memories().Archive(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second archive must report false")

	ok, err = s.Memories().Archive(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok, "unknown id must report false")

	_, err = s.Memories().GetByID(ctx, rec.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	all, err := s.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testScanFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	recs := []*model.MemoryRecord{
		NewRecord("a1", strPtr("A"), 100),
		NewRecord("a2", strPtr("A"), 200),
		NewRecord("b1", strPtr("B"), 150),
		NewRecord("none", nil, 300),
	}
	for _, r := range recs {
		require.NoError(t, s.Memories().Create(ctx, r))
	}

	cases := []struct {
		name string
		f    model.Filter
		want []string
	}{
		{"all", model.Filter{}, []string{"none", "a2", "b1", "a1"}},
		{"project", model.Filter{Project: strPtr("A")}, []string{"a2", "a1"}},
		{"after inclusive", model.Filter{After: i64Ptr(200)}, []string{"none", "a2"}},
		{"before exclusive", model.Filter{Before: i64Ptr(200)}, []string{"b1", "a1"}},
		{"range and project", model.Filter{Project: strPtr("A"), After: i64Ptr(100), Before: i64Ptr(150)}, []string{"a1"}},
		{"no match", model.Filter{Project: strPtr("Z")}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Memories().ScanActive(ctx, tc.f)
			require.NoError(t, err)
			texts := make([]string, 0, len(got))
			for _, r := range got {
				texts = append(texts, r.Text)
			}
			assert.Equal(t, tc.want, texts)
		})
	}
}

func testScanOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	// Same timestamp: ties are broken by id descending.
	var ids []string
	for i := 0; i < 5; i++ {
		r := NewRecord(fmt.Sprintf("Memory %d", i), strPtr("TEST"), 500)
		ids = append(ids, r.ID)
		require.NoError(t, s.Memories().Create(ctx, r))
	}
	got, err := s.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i-1].ID, got[i].ID)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Memories().Create(ctx, NewRecord("same text", nil, 1000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, model.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func testRekeyOnScopeChange(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Memories().Rekey(ctx, true)
	require.NoError(t, err)

	keyed := func(text string, project *string, createdAt int64) *model.MemoryRecord {
		r := NewRecord(text, project, createdAt)
		r.DedupKey = model.DedupKey(r.TextHash, project, true)
		return r
	}
	a := keyed("same", strPtr("A"), 100)
	other := keyed("other", strPtr("A"), 150)
	b := keyed("same", strPtr("B"), 200)
	none := keyed("same", nil, 300)
	for _, r := range []*model.MemoryRecord{a, other, b, none} {
		require.NoError(t, s.Memories().Create(ctx, r))
	}

	n, err := s.Memories().Rekey(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "same scope is a no-op")

	n, err = s.Memories().Rekey(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := s.Memories().FindActiveByDedupKey(ctx, a.TextHash)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID, "oldest record keeps the key")
	_, err = s.Memories().GetByID(ctx, b.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	all, err := s.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	texts := make([]string, 0, len(all))
	for _, r := range all {
		texts = append(texts, r.Text)
	}
	assert.Equal(t, []string{"other", "same"}, texts)

	err = s.Memories().Create(ctx, NewRecord("same", strPtr("C"), 400))
	assert.True(t, errors.Is(err, model.ErrConflict), "global key is enforced: %v", err)

	n, err = s.Memories().Rekey(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	found, err = s.Memories().FindActiveByDedupKey(ctx, model.DedupKey(a.TextHash, strPtr("A"), true))
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	_, err = s.Memories().FindActiveByDedupKey(ctx, a.TextHash)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
