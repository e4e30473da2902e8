// Package file provides a JSON file-backed connection store. It is the
// degraded fallback used when the relational store cannot be opened; the
// whole map is rewritten on every mutation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

var _ driven.ConnectionStore = (*Store)(nil)

// Store is a connection store persisted as one JSON file.
type Store struct {
	path string

	mu    sync.RWMutex
	index map[string]*domain.ConnectionRecord // normalised repo key -> record
}

// record is the on-disk shape of one connection.
type record struct {
	RepoKey           string               `json:"repoKey"`
	Credential        string               `json:"credential"`
	WorkspaceEndpoint string               `json:"workspaceEndpoint"`
	DocumentID        string               `json:"documentId"`
	DocumentTitle     string               `json:"documentTitle"`
	CollectionIDs     domain.CollectionIDs `json:"collectionIds"`
	OwnerUser         domain.OwnerUser     `json:"ownerUser"`
	ConnectedAt       time.Time            `json:"connectedAt"`
	LastUpdatedAt     time.Time            `json:"lastUpdatedAt"`
	LastSyncedAt      *time.Time           `json:"lastSyncedAt,omitempty"`
	LastProcessedPR   *int                 `json:"lastProcessedPr,omitempty"`
	AutoSyncEnabled   bool                 `json:"autoSyncEnabled"`
	Confidence        float64              `json:"confidence"`
}

// NewStore creates a file store at the given path. The file is created on
// the first write.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty store path", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{
		path:  path,
		index: make(map[string]*domain.ConnectionRecord),
	}, nil
}

// Initialize loads the JSON map from disk. A missing file is an empty store.
func (s *Store) Initialize(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading store file: %w", err)
	}

	var records map[string]record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decoding store file: %w", err)
	}

	index := make(map[string]*domain.ConnectionRecord, len(records))
	for _, r := range records {
		conn := fromRecord(r)
		index[domain.NormaliseRepoKey(conn.RepoKey)] = conn
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// flush rewrites the whole map atomically under an already-held lock.
func (s *Store) flush() error {
	records := make(map[string]record, len(s.index))
	for normKey, conn := range s.index {
		records[normKey] = toRecord(conn)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// Put stores or replaces a connection record.
func (s *Store) Put(ctx context.Context, conn *domain.ConnectionRecord) error {
	if conn.RepoKey == "" {
		return fmt.Errorf("%w: empty repo key", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn.LastUpdatedAt = time.Now().UTC()
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = conn.LastUpdatedAt
	}

	stored := *conn
	s.index[domain.NormaliseRepoKey(conn.RepoKey)] = &stored
	return s.flush()
}

// Get returns the record for a repo key, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, repoKey string) (*domain.ConnectionRecord, error) {
	s.mu.RLock()
	conn, ok := s.index[domain.NormaliseRepoKey(repoKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}
	copied := *conn
	return &copied, nil
}

// Delete removes a connection record. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, repoKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normKey := domain.NormaliseRepoKey(repoKey)
	if _, ok := s.index[normKey]; !ok {
		return nil
	}
	delete(s.index, normKey)
	return s.flush()
}

// All returns every connection record.
func (s *Store) All(ctx context.Context) ([]domain.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ConnectionRecord, 0, len(s.index))
	for _, conn := range s.index {
		records = append(records, *conn)
	}
	sort.Slice(records, func(i, j int) bool {
		return domain.NormaliseRepoKey(records[i].RepoKey) < domain.NormaliseRepoKey(records[j].RepoKey)
	})
	return records, nil
}

// UpdateCursor advances the sync cursor, rejecting a PR cursor decrease.
func (s *Store) UpdateCursor(ctx context.Context, repoKey string, update domain.CursorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normKey := domain.NormaliseRepoKey(repoKey)
	current, ok := s.index[normKey]
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}

	updated := *current
	if update.LastProcessedPR != nil {
		if updated.LastProcessedPR != nil && *update.LastProcessedPR < *updated.LastProcessedPR {
			return fmt.Errorf("%w: %d < %d for %s", domain.ErrCursorRegression,
				*update.LastProcessedPR, *updated.LastProcessedPR, repoKey)
		}
		pr := *update.LastProcessedPR
		updated.LastProcessedPR = &pr
	}
	if update.LastSyncedAt != nil {
		t := *update.LastSyncedAt
		updated.LastSyncedAt = &t
	}
	updated.LastUpdatedAt = time.Now().UTC()

	s.index[normKey] = &updated
	return s.flush()
}

// SetAutoSync flips the auto-sync flag.
func (s *Store) SetAutoSync(ctx context.Context, repoKey string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normKey := domain.NormaliseRepoKey(repoKey)
	current, ok := s.index[normKey]
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}

	updated := *current
	updated.AutoSyncEnabled = enabled
	updated.LastUpdatedAt = time.Now().UTC()

	s.index[normKey] = &updated
	return s.flush()
}

// Close is a no-op; every mutation is already flushed.
func (s *Store) Close() error {
	return nil
}

func toRecord(conn *domain.ConnectionRecord) record {
	return record{
		RepoKey:           conn.RepoKey,
		Credential:        conn.Credential,
		WorkspaceEndpoint: conn.WorkspaceEndpoint,
		DocumentID:        conn.DocumentID,
		DocumentTitle:     conn.DocumentTitle,
		CollectionIDs:     conn.CollectionIDs,
		OwnerUser:         conn.OwnerUser,
		ConnectedAt:       conn.ConnectedAt,
		LastUpdatedAt:     conn.LastUpdatedAt,
		LastSyncedAt:      conn.LastSyncedAt,
		LastProcessedPR:   conn.LastProcessedPR,
		AutoSyncEnabled:   conn.AutoSyncEnabled,
		Confidence:        conn.Confidence,
	}
}

func fromRecord(r record) *domain.ConnectionRecord {
	return &domain.ConnectionRecord{
		RepoKey:           r.RepoKey,
		Credential:        r.Credential,
		WorkspaceEndpoint: r.WorkspaceEndpoint,
		DocumentID:        r.DocumentID,
		DocumentTitle:     r.DocumentTitle,
		CollectionIDs:     r.CollectionIDs,
		OwnerUser:         r.OwnerUser,
		ConnectedAt:       r.ConnectedAt,
		LastUpdatedAt:     r.LastUpdatedAt,
		LastSyncedAt:      r.LastSyncedAt,
		LastProcessedPR:   r.LastProcessedPR,
		AutoSyncEnabled:   r.AutoSyncEnabled,
		Confidence:        r.Confidence,
	}
}
