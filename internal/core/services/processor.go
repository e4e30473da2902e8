package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
	"github.com/repobrain/repobrain/internal/logger"
)

// Ensure Processor implements the driving port.
var _ driving.ChangeProcessor = (*Processor)(nil)

// Processor turns classified repository changes into targeted workspace
// mutations.
type Processor struct {
	providers  driven.ProviderFactory
	workspaces driven.WorkspaceFactory
	oracle     driven.Oracle
	history    driven.HistoryStore // optional

	now func() time.Time
}

// NewProcessor creates a change processor. history may be nil.
func NewProcessor(
	providers driven.ProviderFactory,
	workspaces driven.WorkspaceFactory,
	oracle driven.Oracle,
	history driven.HistoryStore,
) *Processor {
	return &Processor{
		providers:  providers,
		workspaces: workspaces,
		oracle:     oracle,
		history:    history,
		now:        time.Now,
	}
}

// OnPullRequest processes one merged pull request: a doc_history entry is
// always written; promotions to the other collections and the main document
// follow the classification. A returned error means the unit failed and the
// cursor must not advance past this PR.
func (p *Processor) OnPullRequest(ctx context.Context, conn *domain.ConnectionRecord, prNumber int) error {
	owner, name, err := domain.SplitRepoKey(conn.RepoKey)
	if err != nil {
		return err
	}

	provider := p.providers.New(ctx, conn.Credential)
	pr, err := provider.GetPR(ctx, owner, name, prNumber)
	if err != nil {
		return fmt.Errorf("fetching PR #%d: %w", prNumber, err)
	}

	// An oracle failure does not abort the unit: the history entry is still
	// written, with zero confidence and no promotions.
	analysis, err := p.oracle.AnalysePR(ctx, conn.RepoKey, pr)
	promoted := err == nil
	if err != nil {
		logger.Warn("classifying PR #%d in %s failed, recording without promotion: %v",
			prNumber, conn.RepoKey, err)
		analysis = &domain.ChangeAnalysis{
			ChangeType:  domain.ChangeTypeUnknown,
			ImpactLevel: domain.ImpactMinor,
			Summary:     pr.Title,
		}
	}

	workspace, err := p.workspaces.New(ctx, conn.WorkspaceEndpoint)
	if err != nil {
		return fmt.Errorf("connecting workspace: %w", err)
	}

	now := p.now().UTC()
	var failures []error

	historyItem := driven.CollectionItem{
		contentKeyEvent: fmt.Sprintf("PR #%d Merged: %s", pr.Number, pr.Title),
		"date":          isoDate(now),
		"description":   analysis.Summary,
		"pr_number":     pr.Number,
		"confidence":    percentLabel(analysis.Confidence),
	}
	if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.DocHistory, []driven.CollectionItem{historyItem}); err != nil {
		failures = append(failures, fmt.Errorf("appending history item: %w", err))
	}

	if promoted {
		p.promote(ctx, workspace, conn, pr, analysis, now, &failures)
	}

	p.recordHistory(ctx, &domain.SyncHistoryEntry{
		RepoKey:       conn.RepoKey,
		PRNumber:      &pr.Number,
		SyncType:      domain.SyncTypePR,
		IsSignificant: promoted,
		ChangeType:    analysis.ChangeType,
		Summary:       analysis.Summary,
		SyncedAt:      now,
	})

	return errors.Join(failures...)
}

// promote applies the collection and main-document mutations one merged PR
// earned. Each mutation is independent; a failure is collected and the rest
// still run.
func (p *Processor) promote(ctx context.Context, workspace driven.Workspace, conn *domain.ConnectionRecord, pr *domain.PullRequest, analysis *domain.ChangeAnalysis, now time.Time, failures *[]error) {
	if analysis.ReleaseNoteWorthy() {
		version := releaseVersion(analysis.ImpactLevel, now)
		item := driven.CollectionItem{
			contentKeyTitle: fmt.Sprintf("%s: %s", version, pr.Title),
			"version":       version,
			"date":          isoDate(now),
			"summary":       analysis.Summary,
			"pr_number":     pr.Number,
			"changes":       strings.Join(analysis.AffectedModules, ", "),
		}
		if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.ReleaseNotes, []driven.CollectionItem{item}); err != nil {
			*failures = append(*failures, fmt.Errorf("appending release note: %w", err))
		}
	}

	if analysis.RequiresADR {
		item := driven.CollectionItem{
			contentKeyTitle: fmt.Sprintf("Decision from PR #%d: %s", pr.Number, pr.Title),
			"adr_id":        adrID(now),
			"status":        "Proposed",
			"date":          isoDate(now),
			"context":       analysis.Summary,
			"decision":      analysis.ArchitectureChanges,
			"confidence":    analysis.Confidence,
		}
		if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.ADRs, []driven.CollectionItem{item}); err != nil {
			*failures = append(*failures, fmt.Errorf("appending ADR: %w", err))
		}
	}

	if len(analysis.FollowUpTasks) > 0 {
		items := make([]driven.CollectionItem, 0, len(analysis.FollowUpTasks))
		for _, task := range analysis.FollowUpTasks {
			items = append(items, driven.CollectionItem{
				contentKeyTask: task,
				"priority":     domain.PriorityMedium,
				"category":     fmt.Sprintf("From PR#%d", pr.Number),
				"reasoning":    analysis.Summary,
				"status":       "To Do",
				"created_at":   isoDate(now),
			})
		}
		if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.EngineeringTasks, items); err != nil {
			*failures = append(*failures, fmt.Errorf("appending tasks: %w", err))
		}
	}

	if len(analysis.NewTechnologies) > 0 {
		err := workspace.UpdateMainDocument(ctx, driven.MainDocumentUpdate{
			PageID:           conn.DocumentID,
			SectionToUpdate:  "Tech Stack",
			NewContent:       renderTechStackUpdate(analysis.NewTechnologies, pr.Number),
			AppendIfNotFound: true,
		})
		if err != nil {
			*failures = append(*failures, fmt.Errorf("updating tech stack: %w", err))
		}
	}

	if analysis.ArchitectureChanges != "" {
		content := fmt.Sprintf("## Architecture\n\n%s\n\n*Updated from PR #%d.*",
			analysis.ArchitectureChanges, pr.Number)
		if err := workspace.RegenerateSection(ctx, conn.DocumentID, "Architecture", content); err != nil {
			*failures = append(*failures, fmt.Errorf("regenerating architecture: %w", err))
		}
	}

	if analysis.PublicAPIChanges {
		content := fmt.Sprintf("## API Changes\n\nPR #%d: %s", pr.Number, analysis.Summary)
		if err := workspace.AppendMarkdown(ctx, conn.DocumentID, content, driven.PositionEnd); err != nil {
			*failures = append(*failures, fmt.Errorf("appending API changes: %w", err))
		}
	}

	if analysis.BreakingChanges {
		content := fmt.Sprintf("## Breaking Changes\n\nPR #%d: %s", pr.Number, analysis.Summary)
		if err := workspace.AppendMarkdown(ctx, conn.DocumentID, content, driven.PositionEnd); err != nil {
			*failures = append(*failures, fmt.Errorf("appending breaking changes: %w", err))
		}
	}

	if err := workspace.AppendMarkdown(ctx, conn.DocumentID, renderUpdateLog(pr.Number, analysis.Summary, now), driven.PositionEnd); err != nil {
		*failures = append(*failures, fmt.Errorf("appending update log: %w", err))
	}
}

// maxCommitBatch bounds how many commits one significance judgement covers.
const maxCommitBatch = 10

// OnCommits processes a batch of direct-branch commits, newest last.
// Significance is the sole gate: an insignificant batch records nothing.
func (p *Processor) OnCommits(ctx context.Context, conn *domain.ConnectionRecord, commits []domain.Commit) error {
	if len(commits) == 0 {
		return nil
	}
	if len(commits) > maxCommitBatch {
		commits = commits[len(commits)-maxCommitBatch:]
	}

	owner, name, err := domain.SplitRepoKey(conn.RepoKey)
	if err != nil {
		return err
	}

	newest := commits[len(commits)-1]
	files := newest.Files
	if len(files) == 0 {
		provider := p.providers.New(ctx, conn.Credential)
		if detailed, err := provider.GetCommit(ctx, owner, name, newest.SHA); err == nil {
			files = detailed.Files
		} else {
			logger.Warn("fetching commit %s in %s: %v", newest.SHA, conn.RepoKey, err)
		}
	}

	significance, err := p.oracle.AnalyseCommits(ctx, conn.RepoKey, commits, files)
	if err != nil {
		// Without a judgement nothing is promoted; the batch is retried on a
		// later cycle only if the cursor did not advance, so log and move on.
		logger.Warn("judging commits in %s: %v", conn.RepoKey, err)
		return nil
	}
	if !significance.IsSignificant {
		return nil
	}

	workspace, err := p.workspaces.New(ctx, conn.WorkspaceEndpoint)
	if err != nil {
		return fmt.Errorf("connecting workspace: %w", err)
	}

	now := p.now().UTC()
	var failures []error

	historyItem := driven.CollectionItem{
		contentKeyEvent: fmt.Sprintf("Significant commits on %s: %s", isoDate(now), significance.Summary),
		"date":          isoDate(now),
		"description":   significance.Summary,
		"confidence":    percentLabel(significance.Confidence),
	}
	if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.DocHistory, []driven.CollectionItem{historyItem}); err != nil {
		failures = append(failures, fmt.Errorf("appending history item: %w", err))
	}

	if significance.ImpactLevel == domain.ImpactMajor {
		version := releaseVersion(significance.ImpactLevel, now)
		item := driven.CollectionItem{
			contentKeyTitle: fmt.Sprintf("%s: %s", version, significance.Summary),
			"version":       version,
			"date":          isoDate(now),
			"summary":       significance.Summary,
		}
		if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.ReleaseNotes, []driven.CollectionItem{item}); err != nil {
			failures = append(failures, fmt.Errorf("appending release note: %w", err))
		}
	}

	if len(significance.SuggestedTasks) > 0 {
		items := make([]driven.CollectionItem, 0, len(significance.SuggestedTasks))
		for _, task := range significance.SuggestedTasks {
			items = append(items, driven.CollectionItem{
				contentKeyTask: task,
				"priority":     domain.PriorityMedium,
				"category":     "From commits",
				"reasoning":    significance.Summary,
				"status":       "To Do",
				"created_at":   isoDate(now),
			})
		}
		if err := workspace.AddCollectionItems(ctx, conn.CollectionIDs.EngineeringTasks, items); err != nil {
			failures = append(failures, fmt.Errorf("appending tasks: %w", err))
		}
	}

	if err := workspace.AppendMarkdown(ctx, conn.DocumentID, renderCommitBlock(significance, len(commits), now), driven.PositionEnd); err != nil {
		failures = append(failures, fmt.Errorf("appending commit block: %w", err))
	}

	p.recordHistory(ctx, &domain.SyncHistoryEntry{
		RepoKey:       conn.RepoKey,
		CommitSHA:     newest.SHA,
		SyncType:      domain.SyncTypeCommit,
		IsSignificant: true,
		ChangeType:    significance.ChangeType,
		Summary:       significance.Summary,
		SyncedAt:      now,
	})

	return errors.Join(failures...)
}

// recordHistory appends an audit entry when a history store is configured.
func (p *Processor) recordHistory(ctx context.Context, entry *domain.SyncHistoryEntry) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(ctx, entry); err != nil {
		logger.Warn("recording sync history for %s: %v", entry.RepoKey, err)
	}
}
