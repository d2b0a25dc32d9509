package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store"
)

// New returns an in-process store. Records live for the lifetime of the
// value; it is used for tests and ephemeral deployments.
func New() store.Store {
	return &memStore{
		records: make(map[string]*model.MemoryRecord),
		active:  make(map[string]string),
	}
}

type memStore struct {
	mtx     sync.RWMutex
	records map[string]*model.MemoryRecord
	// dedup key -> id of the active record that owns it
	active map[string]string
	// scope the keys in active were computed under; empty until Rekey
	scope string
}

func (s *memStore) Memories() store.Memories { return s }

func (s *memStore) Close() error { return nil }

// HealthPing implements health.HealthPinger.
func (s *memStore) HealthPing(ctx context.Context) error { return ctx.Err() }

func (s *memStore) Create(ctx context.Context, rec *model.MemoryRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return model.ErrConflict
	}
	if _, exists := s.active[rec.DedupKey]; exists {
		return model.ErrConflict
	}
	cpy := clone(rec)
	cpy.Archived = false
	s.records[rec.ID] = cpy
	s.active[rec.DedupKey] = rec.ID
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*model.MemoryRecord, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.Archived {
		return nil, model.ErrNotFound
	}
	return clone(rec), nil
}

func (s *memStore) FindActiveByDedupKey(ctx context.Context, key string) (*model.MemoryRecord, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	id, ok := s.active[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return clone(s.records[id]), nil
}

func (s *memStore) Archive(ctx context.Context, id string) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Archived {
		return false, nil
	}
	rec.Archived = true
	if s.active[rec.DedupKey] == id {
		delete(s.active, rec.DedupKey)
	}
	return true, nil
}

func (s *memStore) ScanActive(ctx context.Context, f model.Filter) ([]*model.MemoryRecord, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	out := make([]*model.MemoryRecord, 0, len(s.active))
	for _, rec := range s.records {
		if rec.Archived || !f.Match(rec) {
			continue
		}
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memStore) Rekey(ctx context.Context, perProject bool) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	want := model.DedupScopeName(perProject)
	if s.scope == want {
		return 0, nil
	}
	live := make([]*model.MemoryRecord, 0, len(s.active))
	for _, rec := range s.records {
		if !rec.Archived {
			live = append(live, rec)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].CreatedAt != live[j].CreatedAt {
			return live[i].CreatedAt < live[j].CreatedAt
		}
		return live[i].ID < live[j].ID
	})

	archived := 0
	active := make(map[string]string, len(live))
	for _, rec := range live {
		key := model.DedupKey(rec.TextHash, rec.Project, perProject)
		if _, taken := active[key]; taken {
			rec.Archived = true
			archived++
			continue
		}
		rec.DedupKey = key
		active[key] = rec.ID
	}
	s.active = active
	s.scope = want
	return archived, nil
}

func clone(rec *model.MemoryRecord) *model.MemoryRecord {
	cpy := *rec
	cpy.Embedding = append([]float32(nil), rec.Embedding...)
	cpy.Tags = append([]string{}, rec.Tags...)
	if rec.Project != nil {
		p := *rec.Project
		cpy.Project = &p
	}
	return &cpy
}
