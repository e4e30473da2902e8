package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repobrain/repobrain/internal/core/domain"
)

func connectedRecord() *domain.ConnectionRecord {
	return &domain.ConnectionRecord{
		RepoKey:           "octocat/hello",
		Credential:        "ghp_token",
		WorkspaceEndpoint: "https://workspace.example/mcp",
		DocumentID:        "doc-1",
		DocumentTitle:     "octocat-hello-docs",
		CollectionIDs: domain.CollectionIDs{
			ReleaseNotes:     "col-rn",
			ADRs:             "col-adr",
			EngineeringTasks: "col-task",
			DocHistory:       "col-hist",
		},
	}
}

func newTestProcessor(workspace *mockWorkspace, oracle *mockOracle) *Processor {
	p := NewProcessor(
		&mockProviderFactory{provider: &mockProvider{
			prDetails: map[int]*domain.PullRequest{
				43: {Number: 43, Title: "Add token auth", MergedAt: time.Now()},
			},
		}},
		&mockWorkspaceFactory{workspace: workspace},
		oracle,
		nil,
	)
	p.now = func() time.Time {
		return time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
	}
	return p
}

func TestOnPullRequestMinorPatchOnlyRecordsHistory(t *testing.T) {
	workspace := newMockWorkspace()
	p := newTestProcessor(workspace, &mockOracle{changeAnalysis: &domain.ChangeAnalysis{
		ChangeType:  domain.ChangeTypeRefactor,
		ImpactLevel: domain.ImpactPatch,
		Summary:     "tidy up",
		Confidence:  0.7,
	}})

	require.NoError(t, p.OnPullRequest(context.Background(), connectedRecord(), 43))

	// Exactly one history item, nothing in the other collections.
	assert.Len(t, workspace.items["col-hist"], 1)
	assert.Empty(t, workspace.items["col-rn"])
	assert.Empty(t, workspace.items["col-adr"])
	assert.Empty(t, workspace.items["col-task"])

	event, _ := workspace.items["col-hist"][0][contentKeyEvent].(string)
	assert.Equal(t, "PR #43 Merged: Add token auth", event)
	assert.Equal(t, "70%", workspace.items["col-hist"][0]["confidence"])
}

func TestOnPullRequestMajorBreakingChange(t *testing.T) {
	workspace := newMockWorkspace()
	p := newTestProcessor(workspace, &mockOracle{changeAnalysis: &domain.ChangeAnalysis{
		ChangeType:          domain.ChangeTypeFeature,
		ImpactLevel:         domain.ImpactMajor,
		PublicAPIChanges:    true,
		BreakingChanges:     true,
		RequiresADR:         true,
		Summary:             "New auth API",
		FollowUpTasks:       []string{"migrate clients"},
		AffectedModules:     []string{"auth"},
		ArchitectureChanges: "Token service extracted",
		Confidence:          0.9,
	}})

	require.NoError(t, p.OnPullRequest(context.Background(), connectedRecord(), 43))

	assert.Len(t, workspace.items["col-hist"], 1)

	require.Len(t, workspace.items["col-rn"], 1)
	version, _ := workspace.items["col-rn"][0]["version"].(string)
	assert.Equal(t, "v2026.08.0", version)

	require.Len(t, workspace.items["col-adr"], 1)
	adrID, _ := workspace.items["col-adr"][0]["adr_id"].(string)
	assert.True(t, strings.HasPrefix(adrID, "ADR-"))
	assert.Len(t, adrID, 8)

	require.Len(t, workspace.items["col-task"], 1)
	assert.Equal(t, "migrate clients", workspace.items["col-task"][0][contentKeyTask])
	assert.Equal(t, "From PR#43", workspace.items["col-task"][0]["category"])
	assert.Equal(t, domain.PriorityMedium, workspace.items["col-task"][0]["priority"])

	// Main document mutations: architecture regenerated, breaking changes
	// and API changes appended.
	assert.Len(t, workspace.callsNamed("RegenerateSection:Architecture"), 1)
	var sawBreaking bool
	for _, md := range workspace.markdown["doc-1"] {
		if strings.Contains(md, "Breaking Changes") {
			sawBreaking = true
		}
	}
	assert.True(t, sawBreaking)
}

func TestOnPullRequestVersionByImpact(t *testing.T) {
	now := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "v2026.08.0", releaseVersion(domain.ImpactMajor, now))
	assert.Equal(t, "v2026.08.24", releaseVersion(domain.ImpactMinor, now))
	assert.Equal(t, "v2026.08.24-patch", releaseVersion(domain.ImpactPatch, now))
}

func TestOnPullRequestOracleFailureStillRecordsHistory(t *testing.T) {
	workspace := newMockWorkspace()
	p := newTestProcessor(workspace, &mockOracle{changeErr: domain.ErrOracleUnavailable})

	require.NoError(t, p.OnPullRequest(context.Background(), connectedRecord(), 43))

	// The low-confidence history entry is written, nothing is promoted.
	require.Len(t, workspace.items["col-hist"], 1)
	assert.Equal(t, "0%", workspace.items["col-hist"][0]["confidence"])
	assert.Empty(t, workspace.items["col-rn"])
	assert.Empty(t, workspace.callsNamed("RegenerateSection:"))
}

func TestOnPullRequestWorkspaceFailurePropagates(t *testing.T) {
	workspace := newMockWorkspace()
	workspace.addItemsErr = assert.AnError
	p := newTestProcessor(workspace, &mockOracle{changeAnalysis: &domain.ChangeAnalysis{
		ChangeType:  domain.ChangeTypeBugfix,
		ImpactLevel: domain.ImpactPatch,
	}})

	err := p.OnPullRequest(context.Background(), connectedRecord(), 43)
	assert.Error(t, err)
}

func TestOnCommitsInsignificantRecordsNothing(t *testing.T) {
	workspace := newMockWorkspace()
	p := newTestProcessor(workspace, &mockOracle{significance: &domain.CommitSignificance{
		IsSignificant: false,
	}})

	commits := []domain.Commit{{SHA: "a1", Message: "fix typo", Files: []domain.PRFile{{Filename: "readme.md"}}}}
	require.NoError(t, p.OnCommits(context.Background(), connectedRecord(), commits))

	assert.Empty(t, workspace.calls)
}

func TestOnCommitsSignificantMajor(t *testing.T) {
	workspace := newMockWorkspace()
	p := newTestProcessor(workspace, &mockOracle{significance: &domain.CommitSignificance{
		IsSignificant:  true,
		ImpactLevel:    domain.ImpactMajor,
		ChangeType:     domain.ChangeTypeArchitecture,
		Summary:        "Reworked scheduler",
		SuggestedTasks: []string{"update runbook"},
		Confidence:     0.75,
	}})

	commits := []domain.Commit{{SHA: "a1", Message: "rework scheduler", Files: []domain.PRFile{{Filename: "engine.go"}}}}
	require.NoError(t, p.OnCommits(context.Background(), connectedRecord(), commits))

	assert.Len(t, workspace.items["col-hist"], 1)
	assert.Len(t, workspace.items["col-rn"], 1)
	require.Len(t, workspace.items["col-task"], 1)
	assert.Equal(t, "update runbook", workspace.items["col-task"][0][contentKeyTask])
	assert.NotEmpty(t, workspace.markdown["doc-1"])
}

func TestOnCommitsTrimsToNewestTen(t *testing.T) {
	oracle := &mockOracle{significance: &domain.CommitSignificance{IsSignificant: false}}
	p := newTestProcessor(newMockWorkspace(), oracle)

	var commits []domain.Commit
	for i := 0; i < 15; i++ {
		commits = append(commits, domain.Commit{
			SHA:     fmt.Sprintf("sha-%d", i),
			Message: "change",
			Files:   []domain.PRFile{{Filename: "f.go"}},
		})
	}
	require.NoError(t, p.OnCommits(context.Background(), connectedRecord(), commits))
}
