package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repobrain/repobrain/internal/adapters/driven/storage/memory"
	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
)

type stubMaterialiser struct {
	result *driving.MaterialiseResult
	err    error
	calls  int
}

func (m *stubMaterialiser) Analyse(_ context.Context, _ driving.MaterialiseRequest) (*driving.MaterialiseResult, error) {
	m.calls++
	return m.result, m.err
}

type stubEngine struct {
	mu      sync.Mutex
	result  *driving.CycleResult
	err     error
	status  driving.EngineStatus
	trigger []string
}

func (e *stubEngine) Start(context.Context) error { return nil }
func (e *stubEngine) Stop() error                 { return nil }

func (e *stubEngine) TriggerOne(_ context.Context, repoKey string) (*driving.CycleResult, error) {
	e.mu.Lock()
	e.trigger = append(e.trigger, repoKey)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		return e.result, nil
	}
	return &driving.CycleResult{RepoKey: repoKey}, nil
}

func (e *stubEngine) Status() driving.EngineStatus { return e.status }

func (e *stubEngine) triggered() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.trigger...)
}

// stubWorkspace overrides only the methods the API touches; anything else
// panics through the embedded nil interface.
type stubWorkspace struct {
	driven.Workspace
	documents map[string]string
	deleted   []string
	probeErr  error
}

func (w *stubWorkspace) DocumentExists(_ context.Context, title string) (string, bool, error) {
	if w.probeErr != nil {
		return "", false, w.probeErr
	}
	id, ok := w.documents[title]
	return id, ok, nil
}

func (w *stubWorkspace) DeleteDocument(_ context.Context, id string) error {
	w.deleted = append(w.deleted, id)
	return nil
}

type stubWorkspaceFactory struct {
	workspace *stubWorkspace
	err       error
}

func (f *stubWorkspaceFactory) New(context.Context, string) (driven.Workspace, error) {
	return f.workspace, f.err
}

type stubProvider struct {
	driven.Provider
	repos []domain.Repository
}

func (p *stubProvider) ListAccessibleRepos(context.Context) ([]domain.Repository, error) {
	return p.repos, nil
}

type stubProviderFactory struct{ provider *stubProvider }

func (f *stubProviderFactory) New(context.Context, string) driven.Provider { return f.provider }

type fixture struct {
	server       *Server
	router       http.Handler
	materialiser *stubMaterialiser
	engine       *stubEngine
	connections  *memory.ConnectionStore
	sessions     *memory.SessionStore
	workspace    *stubWorkspace
	provider     *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		materialiser: &stubMaterialiser{},
		engine:       &stubEngine{},
		connections:  memory.NewConnectionStore(),
		sessions:     memory.NewSessionStore(0),
		workspace:    &stubWorkspace{documents: map[string]string{}},
		provider:     &stubProvider{},
	}
	f.server = NewServer(Deps{
		Materialiser:  f.materialiser,
		Engine:        f.engine,
		Connections:   f.connections,
		Sessions:      f.sessions,
		Providers:     &stubProviderFactory{provider: f.provider},
		Workspaces:    &stubWorkspaceFactory{workspace: f.workspace},
		WebhookSecret: "hook-secret",
	})
	f.router = f.server.Router()

	require.NoError(t, f.sessions.Put(context.Background(), &driven.Session{
		ID:         "sess-1",
		User:       domain.OwnerUser{ID: 7, Login: "octocat"},
		Credential: "ghp_token",
	}))
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func connectedFixtureRecord() *domain.ConnectionRecord {
	return &domain.ConnectionRecord{
		RepoKey:           "octocat/hello",
		Credential:        "ghp_token",
		WorkspaceEndpoint: "https://workspace.example/mcp",
		DocumentID:        "doc-1",
		DocumentTitle:     "octocat-hello-docs",
		OwnerUser:         domain.OwnerUser{ID: 7, Login: "octocat"},
		AutoSyncEnabled:   true,
	}
}

func TestAnalyzeMissingFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sync/analyze", map[string]any{
		"sessionId": "sess-1",
		"owner":     "octocat",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Zero(t, f.materialiser.calls)
}

func TestAnalyzeInvalidSession(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sync/analyze", map[string]any{
		"sessionId":   "nope",
		"owner":       "octocat",
		"repo":        "hello",
		"craftMcpUrl": "https://workspace.example/mcp",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decode(t, rec)["error"])
	assert.Zero(t, f.materialiser.calls)
}

func TestAnalyzeSuccess(t *testing.T) {
	f := newFixture(t)
	f.materialiser.result = &driving.MaterialiseResult{
		DocumentID:    "doc-1",
		DocumentTitle: "octocat-hello-docs",
		Confidence:    0.82,
		Analysis: &domain.RepoAnalysis{
			TechnicalStack: domain.TechnicalStack{Backend: []string{"Go"}},
		},
	}

	rec := f.do(t, http.MethodPost, "/sync/analyze", map[string]any{
		"sessionId":   "sess-1",
		"owner":       "octocat",
		"repo":        "hello",
		"craftMcpUrl": "https://workspace.example/mcp",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "alreadyExists")

	doc := body["craftDocument"].(map[string]any)
	assert.Equal(t, "doc-1", doc["id"])
	assert.Equal(t, "octocat-hello-docs", doc["title"])

	analysis := body["analysis"].(map[string]any)
	assert.Equal(t, float64(82), analysis["confidence"])
	assert.Equal(t, "hello", analysis["repoName"])
}

func TestAnalyzeAlreadyExists(t *testing.T) {
	f := newFixture(t)
	f.materialiser.result = &driving.MaterialiseResult{
		AlreadyExists: true,
		DocumentID:    "doc-1",
		DocumentTitle: "octocat-hello-docs",
		Confidence:    0.82,
	}

	rec := f.do(t, http.MethodPost, "/sync/analyze", map[string]any{
		"sessionId":   "sess-1",
		"owner":       "octocat",
		"repo":        "hello",
		"craftMcpUrl": "https://workspace.example/mcp",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["alreadyExists"])
}

func TestManualSyncReturnsCounts(t *testing.T) {
	f := newFixture(t)
	f.engine.result = &driving.CycleResult{
		RepoKey:      "octocat/hello",
		PRsProcessed: []int{42, 43},
		CommitSHAs:   []string{"c1"},
	}

	rec := f.do(t, http.MethodPost, "/sync/manual", map[string]any{
		"sessionId": "sess-1",
		"owner":     "octocat",
		"repo":      "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(2), body["prCount"])
	assert.Equal(t, float64(1), body["commitCount"])
	assert.Equal(t, []any{float64(42), float64(43)}, body["prs"])
	assert.Equal(t, []any{"c1"}, body["commits"])
}

func TestManualSyncUnknownRepo(t *testing.T) {
	f := newFixture(t)
	f.engine.err = domain.ErrNotFound

	rec := f.do(t, http.MethodPost, "/sync/manual", map[string]any{
		"sessionId": "sess-1",
		"owner":     "none",
		"repo":      "such",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualSyncEmptyCycleHasEmptyArrays(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/sync/manual", map[string]any{
		"sessionId": "sess-1",
		"owner":     "octocat",
		"repo":      "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, []any{}, body["prs"])
	assert.Equal(t, []any{}, body["commits"])
}

func TestRepositoriesListsProviderRepos(t *testing.T) {
	f := newFixture(t)
	f.provider.repos = []domain.Repository{
		{FullName: "octocat/hello", DefaultBranch: "main"},
		{FullName: "octocat/world", Private: true},
	}

	rec := f.do(t, http.MethodGet, "/sync/repositories?sessionId=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	repos := decode(t, rec)["repositories"].([]any)
	require.Len(t, repos, 2)
	first := repos[0].(map[string]any)
	assert.Equal(t, "octocat/hello", first["fullName"])
	assert.Equal(t, "main", first["defaultBranch"])
}

func TestConnectedFiltersByUserAndReconciles(t *testing.T) {
	f := newFixture(t)

	mine := connectedFixtureRecord()
	require.NoError(t, f.connections.Put(context.Background(), mine))
	f.workspace.documents[mine.DocumentTitle] = mine.DocumentID

	orphan := connectedFixtureRecord()
	orphan.RepoKey = "octocat/gone"
	orphan.DocumentTitle = "octocat-gone-docs"
	require.NoError(t, f.connections.Put(context.Background(), orphan))
	// No workspace document registered for the orphan.

	other := connectedFixtureRecord()
	other.RepoKey = "someone/else"
	other.OwnerUser = domain.OwnerUser{ID: 99, Login: "someone"}
	require.NoError(t, f.connections.Put(context.Background(), other))

	rec := f.do(t, http.MethodGet, "/sync/connected?sessionId=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	connections := decode(t, rec)["connections"].([]any)
	require.Len(t, connections, 1)
	assert.Equal(t, "octocat/hello", connections[0].(map[string]any)["repoKey"])

	// The orphan was removed from the store on the spot.
	_, err := f.connections.Get(context.Background(), "octocat/gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.connections.Get(context.Background(), "someone/else")
	assert.NoError(t, err)
}

func TestConnectedKeepsRecordOnProbeFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.connections.Put(context.Background(), connectedFixtureRecord()))
	f.workspace.probeErr = assert.AnError

	rec := f.do(t, http.MethodGet, "/sync/connected?sessionId=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	connections := decode(t, rec)["connections"].([]any)
	assert.Empty(t, connections)
	_, err := f.connections.Get(context.Background(), "octocat/hello")
	assert.NoError(t, err)
}

func TestDisconnectRemovesRecord(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.connections.Put(context.Background(), connectedFixtureRecord()))

	rec := f.do(t, http.MethodDelete, "/sync/disconnect/octocat/hello?sessionId=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["deletedCraftDoc"])
	assert.Empty(t, f.workspace.deleted)

	_, err := f.connections.Get(context.Background(), "octocat/hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDisconnectDeletesRemoteDocumentOnRequest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.connections.Put(context.Background(), connectedFixtureRecord()))

	rec := f.do(t, http.MethodDelete, "/sync/disconnect/octocat/hello?sessionId=sess-1&deleteCraftDoc=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, decode(t, rec)["deletedCraftDoc"])
	assert.Equal(t, []string{"doc-1"}, f.workspace.deleted)
}

func TestDisconnectUnknownRepo(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodDelete, "/sync/disconnect/none/such?sessionId=sess-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisconnectOtherUsersConnection(t *testing.T) {
	f := newFixture(t)
	record := connectedFixtureRecord()
	record.OwnerUser = domain.OwnerUser{ID: 99, Login: "someone"}
	require.NoError(t, f.connections.Put(context.Background(), record))

	rec := f.do(t, http.MethodDelete, "/sync/disconnect/octocat/hello?sessionId=sess-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.connections.Get(context.Background(), "octocat/hello")
	assert.NoError(t, err)
}

func TestSyncStatusShape(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
	f.engine.status = driving.EngineStatus{
		Running:        true,
		ConnectedRepos: 3,
		SyncInterval:   5 * time.Minute,
		LastSyncTimes:  map[string]time.Time{"octocat/hello": at},
	}

	rec := f.do(t, http.MethodGet, "/sync/sync-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["isRunning"])
	assert.Equal(t, float64(3), body["connectedRepos"])
	assert.Equal(t, float64(5*60*1000), body["syncInterval"])

	times := body["lastSyncTimes"].(map[string]any)
	assert.Equal(t, float64(at.UnixMilli()), times["octocat/hello"])
}

func TestAutoSyncFlipsFlag(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.connections.Put(context.Background(), connectedFixtureRecord()))

	rec := f.do(t, http.MethodPost, "/sync/auto-sync", map[string]any{
		"sessionId":    "sess-1",
		"repoFullName": "octocat/hello",
		"enabled":      false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	record, err := f.connections.Get(context.Background(), "octocat/hello")
	require.NoError(t, err)
	assert.False(t, record.AutoSyncEnabled)
}

func TestAutoSyncMissingEnabled(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sync/auto-sync", map[string]any{
		"sessionId":    "sess-1",
		"repoFullName": "octocat/hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookRejectsUnsignedBody(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"repository":{"full_name":"octocat/hello"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.engine.triggered())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"repository":{"full_name":"octocat/hello"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("wrong-secret", body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.engine.triggered())
}

func TestWebhookTriggersSyncForConnectedRepo(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.connections.Put(context.Background(), connectedFixtureRecord()))
	body := []byte(`{"repository":{"full_name":"octocat/hello"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("hook-secret", body))
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["accepted"])

	require.Eventually(t, func() bool {
		triggered := f.engine.triggered()
		return len(triggered) == 1 && triggered[0] == "octocat/hello"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookUnconnectedRepoIsIgnored(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"repository":{"full_name":"none/such"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("hook-secret", body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, false, decode(t, rec)["accepted"])
	assert.Empty(t, f.engine.triggered())
}
