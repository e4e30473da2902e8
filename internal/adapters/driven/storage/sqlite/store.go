// Package sqlite provides the relational connection and history stores.
// Reads are served from an in-memory index loaded at startup; every mutation
// writes through to the database under a per-key lock.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/repobrain/repobrain/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// Store is the SQLite-backed storage for connections and sync history.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	index map[string]*domain.ConnectionRecord // normalised repo key -> record

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var (
	_ driven.ConnectionStore = (*Store)(nil)
	_ driven.HistoryStore    = (*Store)(nil)
)

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.repobrain/data/connections.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".repobrain", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "connections.db")

	// WAL mode for better concurrency between the sync engine and the API.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		index: make(map[string]*domain.ConnectionRecord),
		locks: make(map[string]*sync.Mutex),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// keyLock returns the mutation lock for one repo key.
func (s *Store) keyLock(normKey string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[normKey]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[normKey] = lock
	}
	return lock
}

// Initialize loads every persisted connection into the in-memory index.
func (s *Store) Initialize(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_key, credential, workspace_endpoint, document_id,
		       document_title, collection_ids, owner_user, connected_at,
		       last_updated_at, last_synced_at, last_processed_pr,
		       auto_sync_enabled, confidence
		FROM connections
	`)
	if err != nil {
		return fmt.Errorf("loading connections: %w", err)
	}
	defer rows.Close()

	index := make(map[string]*domain.ConnectionRecord)
	for rows.Next() {
		record, err := scanConnection(rows)
		if err != nil {
			return err
		}
		index[domain.NormaliseRepoKey(record.RepoKey)] = record
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating connections: %w", err)
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// scanConnection reads one connections row.
func scanConnection(rows *sql.Rows) (*domain.ConnectionRecord, error) {
	var (
		record          domain.ConnectionRecord
		collectionsJSON string
		ownerJSON       string
		lastSyncedAt    sql.NullTime
		lastProcessedPR sql.NullInt64
	)
	err := rows.Scan(
		&record.RepoKey, &record.Credential, &record.WorkspaceEndpoint,
		&record.DocumentID, &record.DocumentTitle, &collectionsJSON,
		&ownerJSON, &record.ConnectedAt, &record.LastUpdatedAt,
		&lastSyncedAt, &lastProcessedPR, &record.AutoSyncEnabled,
		&record.Confidence,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	if err := json.Unmarshal([]byte(collectionsJSON), &record.CollectionIDs); err != nil {
		return nil, fmt.Errorf("decoding collection ids: %w", err)
	}
	if err := json.Unmarshal([]byte(ownerJSON), &record.OwnerUser); err != nil {
		return nil, fmt.Errorf("decoding owner user: %w", err)
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		record.LastSyncedAt = &t
	}
	if lastProcessedPR.Valid {
		n := int(lastProcessedPR.Int64)
		record.LastProcessedPR = &n
	}
	return &record, nil
}

// Put stores or replaces a connection record.
func (s *Store) Put(ctx context.Context, record *domain.ConnectionRecord) error {
	if record.RepoKey == "" {
		return fmt.Errorf("%w: empty repo key", domain.ErrInvalidInput)
	}
	normKey := domain.NormaliseRepoKey(record.RepoKey)

	lock := s.keyLock(normKey)
	lock.Lock()
	defer lock.Unlock()

	record.LastUpdatedAt = time.Now().UTC()
	if record.ConnectedAt.IsZero() {
		record.ConnectedAt = record.LastUpdatedAt
	}

	if err := s.write(ctx, normKey, record); err != nil {
		return err
	}

	stored := *record
	s.mu.Lock()
	s.index[normKey] = &stored
	s.mu.Unlock()
	return nil
}

// write persists one record under an already-held key lock.
func (s *Store) write(ctx context.Context, normKey string, record *domain.ConnectionRecord) error {
	collectionsJSON, err := json.Marshal(record.CollectionIDs)
	if err != nil {
		return fmt.Errorf("marshalling collection ids: %w", err)
	}
	ownerJSON, err := json.Marshal(record.OwnerUser)
	if err != nil {
		return fmt.Errorf("marshalling owner user: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (
			repo_key_norm, repo_key, credential, workspace_endpoint,
			document_id, document_title, collection_ids, owner_user,
			connected_at, last_updated_at, last_synced_at,
			last_processed_pr, auto_sync_enabled, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_key_norm) DO UPDATE SET
			repo_key = excluded.repo_key,
			credential = excluded.credential,
			workspace_endpoint = excluded.workspace_endpoint,
			document_id = excluded.document_id,
			document_title = excluded.document_title,
			collection_ids = excluded.collection_ids,
			owner_user = excluded.owner_user,
			connected_at = excluded.connected_at,
			last_updated_at = excluded.last_updated_at,
			last_synced_at = excluded.last_synced_at,
			last_processed_pr = excluded.last_processed_pr,
			auto_sync_enabled = excluded.auto_sync_enabled,
			confidence = excluded.confidence
	`, normKey, record.RepoKey, record.Credential, record.WorkspaceEndpoint,
		record.DocumentID, record.DocumentTitle, string(collectionsJSON),
		string(ownerJSON), record.ConnectedAt, record.LastUpdatedAt,
		nullTime(record.LastSyncedAt), nullInt(record.LastProcessedPR),
		record.AutoSyncEnabled, record.Confidence)
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}
	return nil
}

// Get returns the record for a repo key, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, repoKey string) (*domain.ConnectionRecord, error) {
	s.mu.RLock()
	record, ok := s.index[domain.NormaliseRepoKey(repoKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}
	copied := *record
	return &copied, nil
}

// Delete removes a connection record. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, repoKey string) error {
	normKey := domain.NormaliseRepoKey(repoKey)

	lock := s.keyLock(normKey)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM connections WHERE repo_key_norm = ?", normKey); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}

	s.mu.Lock()
	delete(s.index, normKey)
	s.mu.Unlock()
	return nil
}

// All returns every connection record.
func (s *Store) All(ctx context.Context) ([]domain.ConnectionRecord, error) {
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

// UpdateCursor advances the sync cursor. The PR cursor is monotonic; an
// attempted decrease is rejected with domain.ErrCursorRegression.
func (s *Store) UpdateCursor(ctx context.Context, repoKey string, update domain.CursorUpdate) error {
	normKey := domain.NormaliseRepoKey(repoKey)

	lock := s.keyLock(normKey)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.index[normKey]
	s.mu.RUnlock()
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

	if err := s.write(ctx, normKey, &updated); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[normKey] = &updated
	s.mu.Unlock()
	return nil
}

// SetAutoSync flips the auto-sync flag.
func (s *Store) SetAutoSync(ctx context.Context, repoKey string, enabled bool) error {
	normKey := domain.NormaliseRepoKey(repoKey)

	lock := s.keyLock(normKey)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.index[normKey]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, repoKey)
	}

	updated := *current
	updated.AutoSyncEnabled = enabled
	updated.LastUpdatedAt = time.Now().UTC()

	if err := s.write(ctx, normKey, &updated); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[normKey] = &updated
	s.mu.Unlock()
	return nil
}

// Record appends one sync history entry.
func (s *Store) Record(ctx context.Context, entry *domain.SyncHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SyncedAt.IsZero() {
		entry.SyncedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_history (
			id, repo_key, pr_number, commit_sha, sync_type,
			is_significant, change_type, summary, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.RepoKey, nullInt(entry.PRNumber), entry.CommitSHA,
		entry.SyncType, entry.IsSignificant, entry.ChangeType, entry.Summary,
		entry.SyncedAt)
	if err != nil {
		return fmt.Errorf("recording sync history: %w", err)
	}
	return nil
}

// ListByRepo returns the most recent history entries for a repo, newest first.
func (s *Store) ListByRepo(ctx context.Context, repoKey string, limit int) ([]domain.SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_key, pr_number, commit_sha, sync_type,
		       is_significant, change_type, summary, synced_at
		FROM sync_history
		WHERE repo_key = ?
		ORDER BY synced_at DESC
		LIMIT ?
	`, repoKey, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync history: %w", err)
	}
	defer rows.Close()

	var entries []domain.SyncHistoryEntry
	for rows.Next() {
		var (
			entry    domain.SyncHistoryEntry
			prNumber sql.NullInt64
		)
		err := rows.Scan(&entry.ID, &entry.RepoKey, &prNumber, &entry.CommitSHA,
			&entry.SyncType, &entry.IsSignificant, &entry.ChangeType,
			&entry.Summary, &entry.SyncedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning sync history: %w", err)
		}
		if prNumber.Valid {
			n := int(prNumber.Int64)
			entry.PRNumber = &n
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune keeps only the newest keep entries per repo.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_history WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY repo_key ORDER BY synced_at DESC
				) AS row_num FROM sync_history
			) WHERE row_num > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning sync history: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
