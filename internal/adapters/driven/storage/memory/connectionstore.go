// Package memory provides in-memory implementations of the storage ports,
// used by tests and as the session store in the running service.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore is an in-memory connection store.
type ConnectionStore struct {
	mu    sync.RWMutex
	index map[string]*domain.ConnectionRecord // normalised repo key -> record
}

// NewConnectionStore creates an empty in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		index: make(map[string]*domain.ConnectionRecord),
	}
}

// Initialize is a no-op; the store starts empty.
func (s *ConnectionStore) Initialize(ctx context.Context) error {
	return nil
}

// Put stores or replaces a connection record.
func (s *ConnectionStore) Put(ctx context.Context, record *domain.ConnectionRecord) error {
	if record.RepoKey == "" {
		return fmt.Errorf("%w: empty repo key", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.LastUpdatedAt = time.Now().UTC()
	if record.ConnectedAt.IsZero() {
		record.ConnectedAt = record.LastUpdatedAt
	}

	stored := *record
	s.index[domain.NormaliseRepoKey(record.RepoKey)] = &stored
	return nil
}

// Get returns the record for a repo key, or domain.ErrNotFound.
func (s *ConnectionStore) Get(ctx context.Context, repoKey string) (*domain.ConnectionRecord, error) {
	s.mu.RLock()
	record, ok := s.index[domain.NormaliseRepoKey(repoKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}
	copied := *record
	return &copied, nil
}

// Delete removes a connection record.
func (s *ConnectionStore) Delete(ctx context.Context, repoKey string) error {
	s.mu.Lock()
	delete(s.index, domain.NormaliseRepoKey(repoKey))
	s.mu.Unlock()
	return nil
}

// All returns every connection record.
func (s *ConnectionStore) All(ctx context.Context) ([]domain.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ConnectionRecord, 0, len(s.index))
	for _, record := range s.index {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return domain.NormaliseRepoKey(records[i].RepoKey) < domain.NormaliseRepoKey(records[j].RepoKey)
	})
	return records, nil
}

// UpdateCursor advances the sync cursor, rejecting a PR cursor decrease.
func (s *ConnectionStore) UpdateCursor(ctx context.Context, repoKey string, update domain.CursorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normKey := domain.NormaliseRepoKey(repoKey)
	current, ok := s.index[normKey]
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}

	if update.LastProcessedPR != nil {
		if current.LastProcessedPR != nil && *update.LastProcessedPR < *current.LastProcessedPR {
			return fmt.Errorf("%w: %d < %d for %s", domain.ErrCursorRegression,
				*update.LastProcessedPR, *current.LastProcessedPR, repoKey)
		}
		pr := *update.LastProcessedPR
		current.LastProcessedPR = &pr
	}
	if update.LastSyncedAt != nil {
		t := *update.LastSyncedAt
		current.LastSyncedAt = &t
	}
	current.LastUpdatedAt = time.Now().UTC()
	return nil
}

// SetAutoSync flips the auto-sync flag.
func (s *ConnectionStore) SetAutoSync(ctx context.Context, repoKey string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.index[domain.NormaliseRepoKey(repoKey)]
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}
	current.AutoSyncEnabled = enabled
	current.LastUpdatedAt = time.Now().UTC()
	return nil
}

// Close is a no-op.
func (s *ConnectionStore) Close() error {
	return nil
}
