package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repobrain/repobrain/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func testRecord(repoKey string) *domain.ConnectionRecord {
	return &domain.ConnectionRecord{
		RepoKey:           repoKey,
		Credential:        "ghp_testtoken",
		WorkspaceEndpoint: "https://workspace.example/mcp",
		DocumentID:        "doc-1",
		DocumentTitle:     "octocat-hello-docs",
		CollectionIDs: domain.CollectionIDs{
			ReleaseNotes:     "col-rn",
			ADRs:             "col-adr",
			EngineeringTasks: "col-task",
			DocHistory:       "col-hist",
		},
		AutoSyncEnabled: true,
		Confidence:      0.82,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("Octocat/Hello")))

	got, err := store.Get(ctx, "Octocat/Hello")
	require.NoError(t, err)
	assert.Equal(t, "Octocat/Hello", got.RepoKey)
	assert.True(t, got.CollectionIDs.Complete())
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
	assert.False(t, got.ConnectedAt.IsZero())
}

func TestGetCaseInsensitiveKeepsCasing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("Octocat/Hello")))

	got, err := store.Get(ctx, "octocat/hello")
	require.NoError(t, err)
	// Lookup is case-insensitive but the stored key keeps its casing.
	assert.Equal(t, "Octocat/Hello", got.RepoKey)

	got, err = store.Get(ctx, "OCTOCAT/HELLO")
	require.NoError(t, err)
	assert.Equal(t, "Octocat/Hello", got.RepoKey)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "none/such")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInitializeReloadsPersistedRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Put(ctx, testRecord("octocat/hello")))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(ctx))

	got, err := reopened.Get(ctx, "octocat/hello")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "col-adr", got.CollectionIDs.ADRs)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("octocat/hello")))
	require.NoError(t, store.Delete(ctx, "OCTOCAT/hello"))

	_, err := store.Get(ctx, "octocat/hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting an absent key is a no-op.
	assert.NoError(t, store.Delete(ctx, "octocat/hello"))
}

func TestAllSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("zeta/repo")))
	require.NoError(t, store.Put(ctx, testRecord("Alpha/repo")))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha/repo", all[0].RepoKey)
	assert.Equal(t, "zeta/repo", all[1].RepoKey)
}

func TestUpdateCursorAdvances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("octocat/hello")))

	pr := 41
	now := time.Now().UTC()
	require.NoError(t, store.UpdateCursor(ctx, "octocat/hello", domain.CursorUpdate{
		LastProcessedPR: &pr,
		LastSyncedAt:    &now,
	}))

	got, err := store.Get(ctx, "octocat/hello")
	require.NoError(t, err)
	require.NotNil(t, got.LastProcessedPR)
	assert.Equal(t, 41, *got.LastProcessedPR)
	require.NotNil(t, got.LastSyncedAt)
}

func TestUpdateCursorRejectsRegression(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("octocat/hello")))

	pr := 41
	require.NoError(t, store.UpdateCursor(ctx, "octocat/hello", domain.CursorUpdate{LastProcessedPR: &pr}))

	lower := 40
	err := store.UpdateCursor(ctx, "octocat/hello", domain.CursorUpdate{LastProcessedPR: &lower})
	assert.ErrorIs(t, err, domain.ErrCursorRegression)

	// The cursor is unchanged after the rejected update.
	got, err := store.Get(ctx, "octocat/hello")
	require.NoError(t, err)
	assert.Equal(t, 41, *got.LastProcessedPR)

	// Re-applying the same value is idempotent.
	same := 41
	assert.NoError(t, store.UpdateCursor(ctx, "octocat/hello", domain.CursorUpdate{LastProcessedPR: &same}))
}

func TestSetAutoSync(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("octocat/hello")))
	require.NoError(t, store.SetAutoSync(ctx, "octocat/hello", false))

	got, err := store.Get(ctx, "octocat/hello")
	require.NoError(t, err)
	assert.False(t, got.AutoSyncEnabled)
}

func TestHistoryRecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pr := 7
	require.NoError(t, store.Record(ctx, &domain.SyncHistoryEntry{
		RepoKey:       "octocat/hello",
		PRNumber:      &pr,
		SyncType:      domain.SyncTypePR,
		IsSignificant: true,
		ChangeType:    domain.ChangeTypeFeature,
		Summary:       "Added auth",
		SyncedAt:      time.Now().UTC().Add(-time.Minute),
	}))
	require.NoError(t, store.Record(ctx, &domain.SyncHistoryEntry{
		RepoKey:    "octocat/hello",
		CommitSHA:  "abc123",
		SyncType:   domain.SyncTypeCommit,
		ChangeType: domain.ChangeTypeDocs,
		SyncedAt:   time.Now().UTC(),
	}))

	entries, err := store.ListByRepo(ctx, "octocat/hello", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "abc123", entries[0].CommitSHA)
	require.NotNil(t, entries[1].PRNumber)
	assert.Equal(t, 7, *entries[1].PRNumber)
}

func TestHistoryPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &domain.SyncHistoryEntry{
			RepoKey:  "octocat/hello",
			SyncType: domain.SyncTypeCommit,
			Summary:  "entry",
			SyncedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, store.Prune(ctx, 2))

	entries, err := store.ListByRepo(ctx, "octocat/hello", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
