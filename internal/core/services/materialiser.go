package services

import (
	"context"
	"fmt"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
	"github.com/repobrain/repobrain/internal/logger"
)

// Ensure Materialiser implements the driving port.
var _ driving.Materialiser = (*Materialiser)(nil)

// Materialiser runs the one-shot pipeline that turns a repository into an
// engineering brain document.
type Materialiser struct {
	providers   driven.ProviderFactory
	workspaces  driven.WorkspaceFactory
	oracle      driven.Oracle
	connections driven.ConnectionStore

	now func() time.Time
}

// NewMaterialiser creates a materialiser service.
func NewMaterialiser(
	providers driven.ProviderFactory,
	workspaces driven.WorkspaceFactory,
	oracle driven.Oracle,
	connections driven.ConnectionStore,
) *Materialiser {
	return &Materialiser{
		providers:   providers,
		workspaces:  workspaces,
		oracle:      oracle,
		connections: connections,
		now:         time.Now,
	}
}

// Analyse materialises one repository. It is idempotent by repo key: a
// connection that already has a document, locally or in the workspace, is
// returned as-is with AlreadyExists set.
func (m *Materialiser) Analyse(ctx context.Context, req driving.MaterialiseRequest) (*driving.MaterialiseResult, error) {
	if req.Owner == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: owner and name are required", domain.ErrInvalidInput)
	}
	if req.WorkspaceEndpoint == "" {
		return nil, fmt.Errorf("%w: workspace endpoint is required", domain.ErrInvalidInput)
	}
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	repoKey := domain.RepoKey(req.Owner, req.Name)
	title := domain.DocumentTitle(req.Owner, req.Name)

	// Idempotence gate: a stored record with a document id short-circuits.
	if existing, err := m.connections.Get(ctx, repoKey); err == nil && existing.DocumentID != "" {
		return &driving.MaterialiseResult{
			AlreadyExists: true,
			DocumentID:    existing.DocumentID,
			DocumentTitle: existing.DocumentTitle,
			CollectionIDs: existing.CollectionIDs,
			Confidence:    existing.Confidence,
		}, nil
	}

	workspace, err := m.workspaces.New(ctx, req.WorkspaceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting workspace: %w", err)
	}

	// The workspace is the ground truth: a document created by an earlier,
	// partially-failed run is adopted rather than duplicated.
	docID, found, err := workspace.DocumentExists(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("probing workspace: %w", err)
	}
	if found {
		record := &domain.ConnectionRecord{
			RepoKey:           repoKey,
			Credential:        req.Credential,
			WorkspaceEndpoint: req.WorkspaceEndpoint,
			DocumentID:        docID,
			DocumentTitle:     title,
			OwnerUser:         req.User,
			AutoSyncEnabled:   true,
		}
		if err := m.connections.Put(ctx, record); err != nil {
			return nil, fmt.Errorf("hydrating connection: %w", err)
		}
		return &driving.MaterialiseResult{
			AlreadyExists: true,
			DocumentID:    docID,
			DocumentTitle: title,
		}, nil
	}

	provider := m.providers.New(ctx, req.Credential)
	signals := m.gatherSignals(ctx, provider, req.Owner, req.Name, branch)

	analysis, err := m.oracle.AnalyseRepository(ctx, repoKey, signals)
	if err != nil {
		logger.Warn("repository analysis failed for %s, using degraded skeleton: %v", repoKey, err)
		analysis = domain.DegradedRepoAnalysis(req.Name)
	}

	docID, err = workspace.CreateDocument(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	record := &domain.ConnectionRecord{
		RepoKey:           repoKey,
		Credential:        req.Credential,
		WorkspaceEndpoint: req.WorkspaceEndpoint,
		DocumentID:        docID,
		DocumentTitle:     title,
		OwnerUser:         req.User,
		AutoSyncEnabled:   true,
		Confidence:        analysis.Confidence,
	}

	// The first PR sweep starts from the newest already-merged PR so history
	// is not replayed into a fresh document.
	if latest := m.latestMergedPR(ctx, provider, req.Owner, req.Name); latest > 0 {
		record.LastProcessedPR = &latest
	}

	// From here on the record is persisted even when a later step fails;
	// a retry adopts the document through the idempotence gate.
	defer func() {
		if putErr := m.connections.Put(ctx, record); putErr != nil {
			logger.Error("persisting connection %s: %v", repoKey, putErr)
		}
	}()

	now := m.now().UTC()

	if err := workspace.AppendMarkdown(ctx, docID, renderMainPage(repoKey, analysis, now), driven.PositionEnd); err != nil {
		return nil, fmt.Errorf("seeding main page: %w", err)
	}
	if err := workspace.AppendMarkdown(ctx, docID, renderTechnicalSpec(analysis), driven.PositionEnd); err != nil {
		return nil, fmt.Errorf("appending technical specification: %w", err)
	}

	ids, err := m.createCollections(ctx, workspace, docID, analysis, now)
	record.CollectionIDs = ids
	if err != nil {
		return nil, err
	}

	return &driving.MaterialiseResult{
		DocumentID:    docID,
		DocumentTitle: title,
		CollectionIDs: ids,
		Confidence:    analysis.Confidence,
		Analysis:      analysis,
	}, nil
}

// gatherSignals fetches the analysis inputs best-effort. Each signal may fail
// independently; a failed signal is logged and left empty.
func (m *Materialiser) gatherSignals(ctx context.Context, provider driven.Provider, owner, name, branch string) *domain.RepoSignals {
	signals := &domain.RepoSignals{}

	var err error
	if signals.FileTree, err = provider.ListTree(ctx, owner, name, branch); err != nil {
		logger.Warn("listing tree for %s/%s: %v", owner, name, err)
	}
	if signals.Readme, err = provider.GetReadme(ctx, owner, name); err != nil {
		logger.Warn("fetching readme for %s/%s: %v", owner, name, err)
	}
	if signals.PackageManifests, err = provider.GetPackageManifests(ctx, owner, name); err != nil {
		logger.Warn("fetching manifests for %s/%s: %v", owner, name, err)
	}
	if signals.Languages, err = provider.GetLanguages(ctx, owner, name); err != nil {
		logger.Warn("fetching languages for %s/%s: %v", owner, name, err)
	}
	if signals.OpenIssues, err = provider.ListOpenIssues(ctx, owner, name); err != nil {
		logger.Warn("listing issues for %s/%s: %v", owner, name, err)
	}

	return signals
}

// latestMergedPR returns the highest merged PR number, or 0 when unknown.
func (m *Materialiser) latestMergedPR(ctx context.Context, provider driven.Provider, owner, name string) int {
	prs, err := provider.ListMergedPRsSince(ctx, owner, name, 0)
	if err != nil {
		logger.Warn("listing merged PRs for %s/%s: %v", owner, name, err)
		return 0
	}
	if len(prs) == 0 {
		return 0
	}
	return prs[len(prs)-1].Number
}

// createCollections creates the four collections in a fixed order and seeds
// one initial batch of items into each. The returned ids carry whatever was
// created before a failure, so the partial record stays adoptable.
func (m *Materialiser) createCollections(ctx context.Context, workspace driven.Workspace, docID string, analysis *domain.RepoAnalysis, now time.Time) (domain.CollectionIDs, error) {
	var ids domain.CollectionIDs
	var err error

	ids.ReleaseNotes, err = workspace.CreateCollection(ctx, docID, releaseNotesSchema(), driven.PositionEnd)
	if err != nil {
		return ids, fmt.Errorf("creating release notes collection: %w", err)
	}
	if err = workspace.AddCollectionItems(ctx, ids.ReleaseNotes, []driven.CollectionItem{{
		contentKeyTitle: "Initial documentation",
		"version":       releaseVersion(domain.ImpactMajor, now),
		"date":          isoDate(now),
		"summary":       "Engineering brain created for this repository.",
	}}); err != nil {
		return ids, fmt.Errorf("seeding release notes: %w", err)
	}

	ids.ADRs, err = workspace.CreateCollection(ctx, docID, adrsSchema(), driven.PositionEnd)
	if err != nil {
		return ids, fmt.Errorf("creating ADR collection: %w", err)
	}
	adr := analysis.InitialADR
	if err = workspace.AddCollectionItems(ctx, ids.ADRs, []driven.CollectionItem{{
		contentKeyTitle: adr.Title,
		"adr_id":        adrID(now),
		"status":        "Accepted",
		"date":          isoDate(now),
		"context":       adr.Context,
		"decision":      adr.Decision,
		"consequences":  adrConsequencesText(adr.Consequences),
		"confidence":    analysis.Confidence,
	}}); err != nil {
		return ids, fmt.Errorf("seeding ADRs: %w", err)
	}

	ids.EngineeringTasks, err = workspace.CreateCollection(ctx, docID, engineeringTasksSchema(), driven.PositionEnd)
	if err != nil {
		return ids, fmt.Errorf("creating tasks collection: %w", err)
	}
	taskItems := make([]driven.CollectionItem, 0, len(analysis.EngineeringTasks))
	for _, task := range analysis.EngineeringTasks {
		taskItems = append(taskItems, driven.CollectionItem{
			contentKeyTask: task.Task,
			"priority":     task.Priority,
			"category":     task.Category,
			"reasoning":    task.Reasoning,
			"status":       "To Do",
			"created_at":   isoDate(now),
		})
	}
	if len(taskItems) == 0 {
		taskItems = []driven.CollectionItem{{
			contentKeyTask: "Review generated documentation",
			"priority":     domain.PriorityMedium,
			"category":     "Documentation",
			"status":       "To Do",
			"created_at":   isoDate(now),
		}}
	}
	if err = workspace.AddCollectionItems(ctx, ids.EngineeringTasks, taskItems); err != nil {
		return ids, fmt.Errorf("seeding tasks: %w", err)
	}

	ids.DocHistory, err = workspace.CreateCollection(ctx, docID, docHistorySchema(), driven.PositionEnd)
	if err != nil {
		return ids, fmt.Errorf("creating history collection: %w", err)
	}
	if err = workspace.AddCollectionItems(ctx, ids.DocHistory, []driven.CollectionItem{{
		contentKeyEvent: "Document created",
		"date":          isoDate(now),
		"description":   "Initial analysis and document structure generated.",
		"confidence":    percentLabel(analysis.Confidence),
	}}); err != nil {
		return ids, fmt.Errorf("seeding history: %w", err)
	}

	return ids, nil
}
