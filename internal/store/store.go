package store

import (
	"context"

	"github.com/Thianvelaz/Cognio/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (memory, sqlite, postgres).
type Store interface {
	Memories() Memories
	Close() error
}

// Memories is the durable table of memory records.
//
// Create must fail with model.ErrConflict when an active record already
// carries rec.DedupKey. GetByID returns model.ErrNotFound for unknown and
// archived ids alike. Archive returns false without error when the id is
// unknown or already archived. ScanActive returns active records matching f
// ordered by created_at DESC, id DESC from a single consistent read.
// Rekey brings every active record's dedup key in line with the given scope
// when the store last keyed records under the other one. It keeps the oldest
// record of each resulting key active and returns how many it archived.
type Memories interface {
	Create(ctx context.Context, rec *model.MemoryRecord) error
	GetByID(ctx context.Context, id string) (*model.MemoryRecord, error)
	FindActiveByDedupKey(ctx context.Context, key string) (*model.MemoryRecord, error)
	Archive(ctx context.Context, id string) (bool, error)
	ScanActive(ctx context.Context, f model.Filter) ([]*model.MemoryRecord, error)
	Rekey(ctx context.Context, perProject bool) (int, error)
}
