package driven

import (
	"context"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// ConnectionStore is the durable repoKey-to-connection mapping. Lookups hit
// an in-memory index; mutations write through to the backing store under a
// per-key lock.
type ConnectionStore interface {
	// Initialize loads every persisted record into the in-memory index.
	Initialize(ctx context.Context) error

	// Put stores or replaces a connection record.
	Put(ctx context.Context, record *domain.ConnectionRecord) error

	// Get returns the record for a repo key, or domain.ErrNotFound.
	// Key comparison is case-insensitive.
	Get(ctx context.Context, repoKey string) (*domain.ConnectionRecord, error)

	// Delete removes a connection record. Deleting an absent key is a no-op.
	Delete(ctx context.Context, repoKey string) error

	// All returns every connection record.
	All(ctx context.Context) ([]domain.ConnectionRecord, error)

	// UpdateCursor advances the sync cursor. It is idempotent and returns
	// domain.ErrCursorRegression if LastProcessedPR would decrease.
	UpdateCursor(ctx context.Context, repoKey string, update domain.CursorUpdate) error

	// SetAutoSync flips the auto-sync flag.
	SetAutoSync(ctx context.Context, repoKey string, enabled bool) error

	// Close releases the backing store.
	Close() error
}

// HistoryStore records per-unit sync work for audit. Implementations prune
// old entries.
type HistoryStore interface {
	// Record appends one history entry.
	Record(ctx context.Context, entry *domain.SyncHistoryEntry) error

	// ListByRepo returns the most recent entries for a repo, newest first.
	ListByRepo(ctx context.Context, repoKey string, limit int) ([]domain.SyncHistoryEntry, error)

	// Prune keeps only the newest keep entries per repo.
	Prune(ctx context.Context, keep int) error
}
