package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store"
	"github.com/Thianvelaz/Cognio/internal/store/memory"
	"github.com/Thianvelaz/Cognio/internal/store/sqlite"
)

const testDim = 4

type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	fail  map[string]error
	calls map[string]int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vecs: map[string][]float32{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	return f.vectorLocked(text), nil
}

func (f *fakeEmbedder) vectorLocked(text string) []float32 {
	if v, ok := f.vecs[text]; ok {
		return v
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	v := make([]float32, testDim)
	v[h.Sum32()%testDim] = 1
	return v
}

func (f *fakeEmbedder) set(text string, v ...float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecs[text] = v
}

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

type fixture struct {
	svc   *MemoryService
	emb   *fakeEmbedder
	store store.Store
	clock time.Time
}

func testOptions() Options {
	return Options{
		Dimension:          testDim,
		DefaultSearchLimit: 5,
		MaxSearchLimit:     50,
		DefaultThreshold:   0.3,
		MaxPageSize:        100,
		TopTags:            10,
	}
}

func newFixture(t *testing.T, st store.Store, opts Options) *fixture {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	f := &fixture{emb: newFakeEmbedder(), store: st, clock: time.Unix(1_700_000_000, 0)}
	f.svc = NewMemoryService(st, f.emb, opts, zerolog.Nop())
	var mu sync.Mutex
	// Each save lands one second after the previous one.
	f.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) save(t *testing.T, text string, project string, tags ...string) string {
	t.Helper()
	req := model.SaveRequest{Text: text, Tags: tags}
	if project != "" {
		req.Project = &project
	}
	res, err := f.svc.Save(context.Background(), req)
	require.NoError(t, err)
	return res.ID
}

func strPtr(s string) *string { return &s }

func TestSave_DuplicateReturnsSameID(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()
	req := model.SaveRequest{Text: "Python is a programming language", Project: strPtr("TEST")}

	first, err := f.svc.Save(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Saved)
	assert.False(t, first.Duplicate)
	assert.Equal(t, model.ReasonCreated, first.Reason)

	second, err := f.svc.Save(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Saved)
	assert.Equal(t, model.ReasonDuplicate, second.Reason)
	assert.Equal(t, first.ID, second.ID)

	// Duplicates never reach the embedder.
	assert.Equal(t, 1, f.emb.callCount(req.Text))

	// Global scope: a different project still hits the same record.
	third, err := f.svc.Save(ctx, model.SaveRequest{Text: req.Text, Project: strPtr("OTHER")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestSave_NormalisesInput(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	res, err := f.svc.Save(context.Background(), model.SaveRequest{
		Text:    "tagged",
		Project: strPtr("  "),
		Tags:    []string{" b", "a", "b", ""},
	})
	require.NoError(t, err)

	got, err := f.svc.GetMemory(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Project)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, model.TextHash("tagged"), got.TextHash)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestSave_ProjectScopedDedup(t *testing.T) {
	opts := testOptions()
	opts.DedupPerProject = true
	f := newFixture(t, nil, opts)

	a := f.save(t, "same text", "A")
	b := f.save(t, "same text", "B")
	assert.NotEqual(t, a, b)

	again, err := f.svc.Save(context.Background(), model.SaveRequest{Text: "same text", Project: strPtr("A")})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, a, again.ID)
}

func TestSave_DedupScopeChangeKeepsOneActiveRecord(t *testing.T) {
	st := memory.New()
	global := newFixture(t, st, testOptions())
	first := global.save(t, "same text", "TEST")

	opts := testOptions()
	opts.DedupPerProject = true
	perProject := newFixture(t, st, opts)
	perProject.clock = perProject.clock.Add(time.Hour)
	again, err := perProject.svc.Save(context.Background(), model.SaveRequest{Text: "same text", Project: strPtr("TEST")})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first, again.ID)

	other := perProject.save(t, "same text", "OTHER")
	assert.NotEqual(t, first, other)

	// Back to global: the two projects now collide and the newer record is archived.
	back := newFixture(t, st, testOptions())
	require.NoError(t, back.svc.EnsureDedupScope(context.Background()))
	active, err := st.Memories().ScanActive(context.Background(), model.Filter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].ID)

	res, err := back.svc.Save(context.Background(), model.SaveRequest{Text: "same text", Project: strPtr("OTHER")})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, first, res.ID)
}

func TestSave_DedupScopeChangeOnSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scope.db")
	open := func() store.Store {
		db, err := sqlite.Open(path)
		require.NoError(t, err)
		st := sqlite.NewWithDB(db)
		require.NoError(t, store.Prepare(ctx, st, zerolog.Nop()))
		return st
	}

	st := open()
	first := newFixture(t, st, testOptions()).save(t, "same text", "TEST")
	require.NoError(t, st.Close())

	st = open()
	defer func() { _ = st.Close() }()
	opts := testOptions()
	opts.DedupPerProject = true
	res, err := newFixture(t, st, opts).svc.Save(ctx, model.SaveRequest{Text: "same text", Project: strPtr("TEST")})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, first, res.ID)

	active, err := st.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Save(context.Background(), model.SaveRequest{Text: text})
		require.Error(t, err)
		assert.True(t, model.IsValidationError(err), "text %q", text)
	}
	assert.Empty(t, f.emb.calls)
}

func TestSave_ProviderFailureWritesNothing(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()

	f.emb.fail["broken"] = errors.New("model unavailable")
	_, err := f.svc.Save(ctx, model.SaveRequest{Text: "broken"})
	require.Error(t, err)
	assert.True(t, model.IsProviderError(err))
	assert.ErrorIs(t, err, model.ErrProvider)

	f.emb.set("short", 1, 2)
	_, err = f.svc.Save(ctx, model.SaveRequest{Text: "short"})
	require.Error(t, err)
	assert.True(t, model.IsProviderError(err))

	recs, err := f.store.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSave_ConcurrentIdenticalText(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	created := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Save(ctx, model.SaveRequest{Text: "race"})
			if err != nil {
				t.Errorf("save: %v", err)
				return
			}
			ids[i] = res.ID
			created[i] = res.Saved
		}(i)
	}
	wg.Wait()

	nCreated := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			nCreated++
		}
	}
	assert.Equal(t, 1, nCreated)

	recs, err := f.store.Memories().ScanActive(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// racingStore lets another writer slip in between the service's duplicate
// check and its insert.
type racingStore struct {
	store.Store
	mem *racingMemories
}

type racingMemories struct {
	store.Memories
	raced bool
	winID string
}

func (s *racingStore) Memories() store.Memories { return s.mem }

func (m *racingMemories) Create(ctx context.Context, rec *model.MemoryRecord) error {
	if !m.raced {
		m.raced = true
		other := *rec
		other.ID = m.winID
		if err := m.Memories.Create(ctx, &other); err != nil {
			return err
		}
	}
	return m.Memories.Create(ctx, rec)
}

func TestSave_ConflictBecomesDuplicate(t *testing.T) {
	inner := memory.New()
	st := &racingStore{Store: inner, mem: &racingMemories{Memories: inner.Memories(), winID: "winner"}}
	f := newFixture(t, st, testOptions())

	res, err := f.svc.Save(context.Background(), model.SaveRequest{Text: "contended"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "winner", res.ID)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()
	id := f.save(t, "Memory to delete", "TEST", "test")

	ok, err := f.svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.Delete(ctx, "no-such-id")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.GetMemory(ctx, id)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// The hash is free again once its record is archived.
	again, err := f.svc.Save(ctx, model.SaveRequest{Text: "Memory to delete"})
	require.NoError(t, err)
	assert.True(t, again.Saved)
	assert.NotEqual(t, id, again.ID)
}

func TestBulkDelete(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()
	f.save(t, "Memory 1", "PROJECT_A", "test")
	f.save(t, "Memory 2", "PROJECT_A", "test")
	f.save(t, "Memory 3", "PROJECT_B", "test")

	n, err := f.svc.BulkDelete(ctx, "PROJECT_A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.svc.List(ctx, model.ListRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalItems)
	assert.Equal(t, "PROJECT_B", *list.Memories[0].Project)

	n, err = f.svc.BulkDelete(ctx, "PROJECT_A")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.BulkDelete(ctx, " ")
	assert.True(t, model.IsValidationError(err))
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	ctx := context.Background()
	f.save(t, "Memory 1", "PROJECT_A", "tag1", "tag2")
	f.save(t, "Memory 2", "PROJECT_B", "tag2", "tag3")
	f.save(t, "Loose", "", "tag3")

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalMemories)
	assert.Equal(t, 2, st.TotalProjects)
	assert.Equal(t, map[string]int{"PROJECT_A": 1, "PROJECT_B": 1}, st.ByProject)
	assert.Equal(t, []model.TagCount{{Tag: "tag2", Count: 2}, {Tag: "tag3", Count: 2}, {Tag: "tag1", Count: 1}}, st.TopTags)
	assert.Equal(t, int64(8+8+5+3*testDim*4), st.StorageBytes)
	assert.Equal(t, 0.0, st.StorageMB)
	assert.Equal(t, "69 B", st.StorageHuman)
}

func TestStats_TopTagsCapped(t *testing.T) {
	opts := testOptions()
	opts.TopTags = 2
	f := newFixture(t, nil, opts)
	for i := 0; i < 5; i++ {
		f.save(t, fmt.Sprintf("m%d", i), "", fmt.Sprintf("t%d", i))
	}
	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.TagCount{{Tag: "t0", Count: 1}, {Tag: "t1", Count: 1}}, st.TopTags)
}

func TestStats_Empty(t *testing.T) {
	f := newFixture(t, nil, testOptions())
	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalMemories)
	assert.Empty(t, st.ByProject)
	assert.Empty(t, st.TopTags)
	assert.Equal(t, "0 B", st.StorageHuman)
}
