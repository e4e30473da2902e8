package domain

import (
	"fmt"
	"strings"
	"time"
)

// OwnerUser identifies the provider account that created a connection.
type OwnerUser struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// CollectionIDs holds the workspace ids of the four sub-collections that make
// up an engineering brain. A connection with a non-empty DocumentID always has
// all four set.
type CollectionIDs struct {
	ReleaseNotes     string `json:"release_notes"`
	ADRs             string `json:"adrs"`
	EngineeringTasks string `json:"engineering_tasks"`
	DocHistory       string `json:"doc_history"`
}

// Complete reports whether all four collection ids are set.
func (c CollectionIDs) Complete() bool {
	return c.ReleaseNotes != "" && c.ADRs != "" && c.EngineeringTasks != "" && c.DocHistory != ""
}

// ConnectionRecord is the durable state for one connected repository.
type ConnectionRecord struct {
	// RepoKey is "{owner}/{name}", case-preserving, compared case-insensitively.
	RepoKey string

	// Credential is the provider token. Redacted in logs.
	Credential string

	// WorkspaceEndpoint is the tool-protocol URL of the document workspace.
	WorkspaceEndpoint string

	// DocumentID is the workspace id of the root document. Empty until
	// materialisation succeeds.
	DocumentID string

	// DocumentTitle is "{owner}-{name}-docs".
	DocumentTitle string

	CollectionIDs CollectionIDs
	OwnerUser     OwnerUser

	ConnectedAt   time.Time
	LastUpdatedAt time.Time

	// LastSyncedAt is nil until the first sync cycle completes.
	LastSyncedAt *time.Time

	// LastProcessedPR is the highest merged-PR number already reflected in
	// the workspace. Nil until known. Monotonic non-decreasing.
	LastProcessedPR *int

	AutoSyncEnabled bool

	// Confidence is the last oracle-reported confidence in [0,1].
	Confidence float64
}

// RepoKey builds the canonical "{owner}/{name}" key.
func RepoKey(owner, name string) string {
	return owner + "/" + name
}

// NormaliseRepoKey lowercases a repo key for comparison. Stored keys keep
// their original casing.
func NormaliseRepoKey(key string) string {
	return strings.ToLower(key)
}

// SplitRepoKey splits "{owner}/{name}" into its parts.
func SplitRepoKey(key string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(key, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("%w: repo key %q", ErrInvalidInput, key)
	}
	return owner, name, nil
}

// DocumentTitle builds the canonical workspace document title for a repository.
func DocumentTitle(owner, name string) string {
	return fmt.Sprintf("%s-%s-docs", owner, name)
}

// CursorUpdate carries the fields advanced at the end of a sync cycle.
// Nil fields are left unchanged.
type CursorUpdate struct {
	LastProcessedPR *int
	LastSyncedAt    *time.Time
}

// SyncHistoryEntry records one unit of sync work for audit.
type SyncHistoryEntry struct {
	ID            string
	RepoKey       string
	PRNumber      *int
	CommitSHA     string
	SyncType      string // "pr", "commit" or "manual"
	IsSignificant bool
	ChangeType    string
	Summary       string
	SyncedAt      time.Time
}

// Sync history types.
const (
	SyncTypePR     = "pr"
	SyncTypeCommit = "commit"
	SyncTypeManual = "manual"
)
