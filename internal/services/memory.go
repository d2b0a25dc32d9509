package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Thianvelaz/Cognio/internal/config"
	"github.com/Thianvelaz/Cognio/internal/embeddings"
	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/search"
	"github.com/Thianvelaz/Cognio/internal/store"
)

// maxSaveAttempts bounds retries when a concurrent writer wins the insert race.
const maxSaveAttempts = 3

// Options tunes ranking, paging and deduplication.
type Options struct {
	Dimension          int
	DedupPerProject    bool
	DefaultSearchLimit int
	MaxSearchLimit     int
	DefaultThreshold   float64
	MaxPageSize        int
	TopTags            int
}

// OptionsFromConfig copies the relevant settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dimension:          cfg.EmbedDimension,
		DedupPerProject:    cfg.DedupPerProject(),
		DefaultSearchLimit: cfg.DefaultSearchLimit,
		MaxSearchLimit:     cfg.MaxSearchLimit,
		DefaultThreshold:   cfg.DefaultThreshold,
		MaxPageSize:        cfg.MaxPageSize,
		TopTags:            cfg.TopTags,
	}
}

// MemoryService orchestrates memory use cases over a store and an embedder.
type MemoryService struct {
	store store.Store
	emb   embeddings.Provider
	opts  Options
	log   zerolog.Logger
	locks *keyLock

	scopeMu    sync.Mutex
	scopeReady bool

	now   func() time.Time
	newID func() string
}

func NewMemoryService(s store.Store, emb embeddings.Provider, opts Options, log zerolog.Logger) *MemoryService {
	return &MemoryService{
		store: s,
		emb:   emb,
		opts:  opts,
		log:   log,
		locks: newKeyLock(),
		now:   time.Now,
		newID: newRecordID,
	}
}

func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// EnsureDedupScope re-keys stored records when they were keyed under a
// different dedup scope than this service uses. Save calls it before the
// first write; calling it at startup surfaces failures early.
func (s *MemoryService) EnsureDedupScope(ctx context.Context) error {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	if s.scopeReady {
		return nil
	}
	archived, err := s.store.Memories().Rekey(ctx, s.opts.DedupPerProject)
	if err != nil {
		return err
	}
	if archived > 0 {
		s.log.Warn().
			Int("archived", archived).
			Str("dedup_scope", model.DedupScopeName(s.opts.DedupPerProject)).
			Msg("dedup scope changed; archived records that became duplicates")
	}
	s.scopeReady = true
	return nil
}

// Save stores text unless an active record already holds the same content
// (within the same project when deduplication is project scoped), in which
// case that record's id is returned with Duplicate set.
func (s *MemoryService) Save(ctx context.Context, req model.SaveRequest) (*model.SaveResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, model.NewValidationError("text", "must not be empty")
	}
	if err := s.EnsureDedupScope(ctx); err != nil {
		return nil, err
	}
	return s.save(ctx, req, nil)
}

// save stores a validated request. A nil vec is computed here, after the
// duplicate check.
func (s *MemoryService) save(ctx context.Context, req model.SaveRequest, vec []float32) (*model.SaveResult, error) {
	project := model.NormalizeProject(req.Project)
	tags := model.NormalizeTags(req.Tags)
	hash := model.TextHash(req.Text)
	key := model.DedupKey(hash, project, s.opts.DedupPerProject)

	// Fast path: known content never reaches the embedder.
	if res, err := s.findDuplicate(ctx, key); res != nil || err != nil {
		return res, err
	}

	if vec == nil {
		var err error
		if vec, err = s.embed(ctx, req.Text); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		if res, err := s.findDuplicate(ctx, key); res != nil || err != nil {
			return res, err
		}
		ts := model.Timestamp(s.now())
		rec := &model.MemoryRecord{
			ID:        s.newID(),
			Text:      req.Text,
			TextHash:  hash,
			Embedding: vec,
			Project:   project,
			Tags:      tags,
			CreatedAt: ts,
			UpdatedAt: ts,
			DedupKey:  key,
		}
		err := s.store.Memories().Create(ctx, rec)
		if err == nil {
			s.log.Debug().Str("id", rec.ID).Str("project", rec.ProjectName()).Msg("memory saved")
			return &model.SaveResult{ID: rec.ID, Saved: true, Reason: model.ReasonCreated}, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		s.log.Debug().Int("attempt", attempt+1).Msg("save lost insert race; re-checking")
	}
	return nil, &model.StorageError{Op: "save", Err: fmt.Errorf("insert kept conflicting after %d attempts", maxSaveAttempts)}
}

func (s *MemoryService) findDuplicate(ctx context.Context, key string) (*model.SaveResult, error) {
	existing, err := s.store.Memories().FindActiveByDedupKey(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.SaveResult{ID: existing.ID, Saved: false, Duplicate: true, Reason: model.ReasonDuplicate}, nil
}

func (s *MemoryService) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.emb.Embed(ctx, text)
	if err != nil {
		if model.IsProviderError(err) {
			return nil, err
		}
		return nil, &model.ProviderError{Op: "embed", Err: err}
	}
	if err := embeddings.CheckDimension(vec, s.opts.Dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// GetMemory returns an active record or model.ErrNotFound.
func (s *MemoryService) GetMemory(ctx context.Context, id string) (*model.MemoryRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.ErrNotFound
	}
	return s.store.Memories().GetByID(ctx, id)
}

// Search ranks active records by similarity to the query, keeping only those
// strictly above the threshold.
func (s *MemoryService) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, model.NewValidationError("query", "must not be empty")
	}
	limit, err := s.searchLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	threshold := s.opts.DefaultThreshold
	if req.Threshold != nil {
		if math.IsNaN(*req.Threshold) {
			return nil, model.NewValidationError("threshold", "must be a number")
		}
		threshold = *req.Threshold
	}
	if req.After != nil && req.Before != nil && *req.After > *req.Before {
		return nil, model.NewValidationError("after_date", "must be earlier than before_date")
	}

	qvec, err := s.embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Memories().ScanActive(ctx, model.Filter{
		Project: model.NormalizeProject(req.Project),
		After:   req.After,
		Before:  req.Before,
	})
	if err != nil {
		return nil, err
	}
	hits := search.Rank(search.Score(qvec, recs), &threshold, limit)
	results := search.ToScored(hits)
	return &model.SearchResponse{Query: req.Query, Results: results, Total: len(results)}, nil
}

func (s *MemoryService) searchLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, model.NewValidationError("limit", "must not be negative")
	case limit == 0:
		return s.opts.DefaultSearchLimit, nil
	case limit > s.opts.MaxSearchLimit:
		return s.opts.MaxSearchLimit, nil
	}
	return limit, nil
}

// List returns one page of active records, newest first or, for relevance
// sort, by similarity to the search query with no threshold applied.
func (s *MemoryService) List(ctx context.Context, req model.ListRequest) (*model.ListResponse, error) {
	if req.Page < 1 {
		return nil, model.NewValidationError("page", "must be at least 1")
	}
	if req.Limit < 1 || req.Limit > s.opts.MaxPageSize {
		return nil, model.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", s.opts.MaxPageSize))
	}
	sortBy := req.Sort
	if sortBy == "" {
		sortBy = model.SortRecency
	}
	if sortBy != model.SortRecency && sortBy != model.SortRelevance {
		return nil, model.NewValidationError("sort", "must be recency or relevance")
	}
	if sortBy == model.SortRelevance && strings.TrimSpace(req.SearchQuery) == "" {
		return nil, model.NewValidationError("q", "relevance sort requires a search query")
	}

	var qvec []float32
	if sortBy == model.SortRelevance {
		var err error
		if qvec, err = s.embed(ctx, req.SearchQuery); err != nil {
			return nil, err
		}
	}
	recs, err := s.store.Memories().ScanActive(ctx, model.Filter{Project: model.NormalizeProject(req.Project)})
	if err != nil {
		return nil, err
	}

	var page []model.ScoredMemory
	if sortBy == model.SortRelevance {
		hits := search.Score(qvec, recs)
		search.SortByRelevance(hits)
		page = search.ToScored(search.Paginate(hits, req.Page, req.Limit))
	} else {
		search.SortRecency(recs)
		for _, r := range search.Paginate(recs, req.Page, req.Limit) {
			page = append(page, model.ScoredMemory{MemoryRecord: r})
		}
		if page == nil {
			page = []model.ScoredMemory{}
		}
	}
	return &model.ListResponse{
		Memories:   page,
		TotalItems: len(recs),
		TotalPages: search.TotalPages(len(recs), req.Limit),
		Page:       req.Page,
		Limit:      req.Limit,
	}, nil
}

// Delete archives a record. It reports false when the id is unknown or
// already archived.
func (s *MemoryService) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	ok, err := s.store.Memories().Archive(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Debug().Str("id", id).Msg("memory archived")
	}
	return ok, nil
}

// BulkDelete archives every active record in project and returns how many
// were archived. Individual failures are logged and skipped.
func (s *MemoryService) BulkDelete(ctx context.Context, project string) (int, error) {
	p := model.NormalizeProject(&project)
	if p == nil {
		return 0, model.NewValidationError("project", "must not be empty")
	}
	recs, err := s.store.Memories().ScanActive(ctx, model.Filter{Project: p})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range recs {
		ok, err := s.store.Memories().Archive(ctx, r.ID)
		if err != nil {
			s.log.Error().Err(err).Str("id", r.ID).Str("project", *p).Msg("bulk delete: archive failed")
			continue
		}
		if ok {
			count++
		}
	}
	s.log.Info().Str("project", *p).Int("archived", count).Msg("bulk delete complete")
	return count, nil
}
