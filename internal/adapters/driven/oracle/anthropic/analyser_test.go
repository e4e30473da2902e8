package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// fakeMessages returns a test server that replies to /v1/messages with the
// given text block.
func fakeMessages(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		resp := map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewAnalyserRequiresKey(t *testing.T) {
	_, err := NewAnalyser(Config{})
	require.Error(t, err)

	a, err := NewAnalyser(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, a.ModelName())
}

func TestAnalysePR(t *testing.T) {
	reply := `Here is the classification:
{"changeType":"feature","impactLevel":"major","affectedModules":["auth"],"publicAPIChanges":true,"breakingChanges":false,"requiresADR":true,"summary":"Adds token auth","confidence":0.9}`
	srv := fakeMessages(t, reply)
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	analysis, err := a.AnalysePR(context.Background(), "octocat/hello", &domain.PullRequest{
		Number:   7,
		Title:    "Add token auth",
		MergedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeTypeFeature, analysis.ChangeType)
	assert.Equal(t, domain.ImpactMajor, analysis.ImpactLevel)
	assert.True(t, analysis.RequiresADR)
	assert.InDelta(t, 0.9, analysis.Confidence, 1e-9)
}

func TestAnalysePRRepairsTruncatedReply(t *testing.T) {
	reply := `{"changeType":"bugfix","impactLevel":"patch","summary":"Fix nil deref","affectedModules":["core",`
	srv := fakeMessages(t, reply)
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	analysis, err := a.AnalysePR(context.Background(), "octocat/hello", &domain.PullRequest{Number: 8})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeTypeBugfix, analysis.ChangeType)
	assert.Equal(t, []string{"core"}, analysis.AffectedModules)
}

func TestAnalysePRNormalisesUnknownEnums(t *testing.T) {
	reply := `{"changeType":"mystery","impactLevel":"colossal","summary":"odd","confidence":3.5}`
	srv := fakeMessages(t, reply)
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	analysis, err := a.AnalysePR(context.Background(), "octocat/hello", &domain.PullRequest{Number: 9})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeTypeUnknown, analysis.ChangeType)
	assert.Equal(t, domain.ImpactMinor, analysis.ImpactLevel)
	assert.Equal(t, 1.0, analysis.Confidence)
}

func TestAnalyseCommits(t *testing.T) {
	reply := `{"isSignificant":true,"summary":"Reworked scheduler","changeType":"architecture","confidence":0.7}`
	srv := fakeMessages(t, reply)
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	sig, err := a.AnalyseCommits(context.Background(), "octocat/hello", []domain.Commit{
		{SHA: "abc123", Message: "rework scheduler"},
	}, nil)
	require.NoError(t, err)
	assert.True(t, sig.IsSignificant)
	assert.Equal(t, domain.ChangeTypeArchitecture, sig.ChangeType)
}

func TestAnalyseReplyWithoutJSON(t *testing.T) {
	srv := fakeMessages(t, "I cannot analyse this repository.")
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.AnalysePR(context.Background(), "octocat/hello", &domain.PullRequest{Number: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestAnalyseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"overloaded"}}`)
	}))
	defer srv.Close()

	a, err := NewAnalyser(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.AnalysePR(context.Background(), "octocat/hello", &domain.PullRequest{Number: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}
