package model

// MemoryRecord is the only persisted entity. Everything except Archived is
// immutable once created.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	TextHash  string    `json:"text_hash"`
	Embedding []float32 `json:"-"`
	Project   *string   `json:"project"`
	Tags      []string  `json:"tags"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
	Archived  bool      `json:"-"`

	// DedupKey is derived from TextHash (and Project when deduplication is
	// scoped per project). It is unique among active records.
	DedupKey string `json:"-"`
}

// ProjectName returns the project or "" when the record is unscoped.
func (r *MemoryRecord) ProjectName() string {
	if r.Project == nil {
		return ""
	}
	return *r.Project
}

// Filter restricts a scan of active records. After is inclusive and Before
// is exclusive: After <= created_at < Before.
type Filter struct {
	Project *string
	After   *int64
	Before  *int64
}

// Match reports whether rec satisfies the filter. Archived state is not
// considered.
func (f Filter) Match(rec *MemoryRecord) bool {
	if f.Project != nil && (rec.Project == nil || *rec.Project != *f.Project) {
		return false
	}
	if f.After != nil && rec.CreatedAt < *f.After {
		return false
	}
	if f.Before != nil && rec.CreatedAt >= *f.Before {
		return false
	}
	return true
}

// SaveRequest carries the user content for a new memory.
type SaveRequest struct {
	Text    string   `json:"text"`
	Project *string  `json:"project,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

const (
	ReasonCreated   = "created"
	ReasonDuplicate = "duplicate"
)

// SaveResult reports whether a save created a record or hit an existing one.
type SaveResult struct {
	ID        string `json:"id"`
	Saved     bool   `json:"saved"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason"`
}

// SearchRequest describes a thresholded similarity query. Zero values pick
// the configured defaults.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold *float64
	Project   *string
	After     *int64
	Before    *int64
}

// ScoredMemory is a record annotated with its similarity to a query.
type ScoredMemory struct {
	*MemoryRecord
	Score *float64 `json:"score,omitempty"`
}

// SearchResponse is the ranked output of a search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []ScoredMemory `json:"results"`
	Total   int            `json:"total"`
}

const (
	SortRecency   = "recency"
	SortRelevance = "relevance"
)

// ListRequest selects one page of active records.
type ListRequest struct {
	Project     *string
	Page        int
	Limit       int
	Sort        string
	SearchQuery string
}

// ListResponse is one page of records plus paging totals.
type ListResponse struct {
	Memories   []ScoredMemory `json:"memories"`
	TotalItems int            `json:"total_items"`
	TotalPages int            `json:"total_pages"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
}

// TagCount is one entry of the tag frequency ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats aggregates the active record set.
type Stats struct {
	TotalMemories int            `json:"total_memories"`
	TotalProjects int            `json:"total_projects"`
	StorageBytes  int64          `json:"storage_bytes"`
	StorageMB     float64        `json:"storage_mb"`
	StorageHuman  string         `json:"storage_human"`
	ByProject     map[string]int `json:"by_project"`
	TopTags       []TagCount     `json:"top_tags"`
}

// ImportResult counts the outcome of each imported unit.
type ImportResult struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}
