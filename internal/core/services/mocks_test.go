package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// mockProvider is a hand-written driven.Provider double. Zero values behave
// like an empty repository; call names are recorded for assertions.
type mockProvider struct {
	mu    sync.Mutex
	calls []string

	tree      []domain.TreeEntry
	readme    string
	manifests map[string]string
	languages map[string]int
	issues    []domain.IssueSummary
	mergedPRs []domain.PRSummary
	prDetails map[int]*domain.PullRequest
	commits   []domain.Commit
	repos     []domain.Repository

	listPRsErr     error
	listCommitsErr error
}

var _ driven.Provider = (*mockProvider)(nil)

func (m *mockProvider) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) ListTree(ctx context.Context, owner, name, ref string) ([]domain.TreeEntry, error) {
	m.record("ListTree")
	return m.tree, nil
}

func (m *mockProvider) GetReadme(ctx context.Context, owner, name string) (string, error) {
	m.record("GetReadme")
	return m.readme, nil
}

func (m *mockProvider) GetPackageManifests(ctx context.Context, owner, name string) (map[string]string, error) {
	m.record("GetPackageManifests")
	return m.manifests, nil
}

func (m *mockProvider) GetLanguages(ctx context.Context, owner, name string) (map[string]int, error) {
	m.record("GetLanguages")
	return m.languages, nil
}

func (m *mockProvider) ListOpenIssues(ctx context.Context, owner, name string) ([]domain.IssueSummary, error) {
	m.record("ListOpenIssues")
	return m.issues, nil
}

func (m *mockProvider) ListMergedPRsSince(ctx context.Context, owner, name string, sinceNumber int) ([]domain.PRSummary, error) {
	m.record("ListMergedPRsSince")
	if m.listPRsErr != nil {
		return nil, m.listPRsErr
	}
	var out []domain.PRSummary
	for _, pr := range m.mergedPRs {
		if pr.Number > sinceNumber {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (m *mockProvider) GetPR(ctx context.Context, owner, name string, number int) (*domain.PullRequest, error) {
	m.record(fmt.Sprintf("GetPR:%d", number))
	if pr, ok := m.prDetails[number]; ok {
		return pr, nil
	}
	return &domain.PullRequest{Number: number, Title: fmt.Sprintf("PR %d", number)}, nil
}

func (m *mockProvider) GetCommit(ctx context.Context, owner, name, sha string) (*domain.Commit, error) {
	m.record("GetCommit")
	return &domain.Commit{SHA: sha}, nil
}

func (m *mockProvider) ListCommits(ctx context.Context, owner, name, ref string, since time.Time) ([]domain.Commit, error) {
	m.record("ListCommits")
	if m.listCommitsErr != nil {
		return nil, m.listCommitsErr
	}
	return m.commits, nil
}

func (m *mockProvider) ListAccessibleRepos(ctx context.Context) ([]domain.Repository, error) {
	m.record("ListAccessibleRepos")
	return m.repos, nil
}

type mockProviderFactory struct {
	provider *mockProvider
}

var _ driven.ProviderFactory = (*mockProviderFactory)(nil)

func (f *mockProviderFactory) New(ctx context.Context, credential string) driven.Provider {
	return f.provider
}

// mockWorkspace is a hand-written driven.Workspace double backed by maps.
type mockWorkspace struct {
	mu    sync.Mutex
	calls []string

	documents   map[string]string // title -> id
	nextDocID   int
	collections []string                           // creation order, by schema name
	schemas     map[string]driven.CollectionSchema // collection id -> schema
	items       map[string][]driven.CollectionItem // collection id -> items
	markdown    map[string][]string                // page id -> appended markdown
	blocks      map[string][]driven.Block

	existsErr        error
	createColErr     error
	addItemsErr      error
	appendMarkdownEr error
}

var _ driven.Workspace = (*mockWorkspace)(nil)

func newMockWorkspace() *mockWorkspace {
	return &mockWorkspace{
		documents: make(map[string]string),
		schemas:   make(map[string]driven.CollectionSchema),
		items:     make(map[string][]driven.CollectionItem),
		markdown:  make(map[string][]string),
		blocks:    make(map[string][]driven.Block),
	}
}

func (m *mockWorkspace) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockWorkspace) callsNamed(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, call := range m.calls {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func (m *mockWorkspace) ListDocuments(ctx context.Context) ([]driven.DocumentRef, error) {
	m.record("ListDocuments")
	var refs []driven.DocumentRef
	for title, id := range m.documents {
		refs = append(refs, driven.DocumentRef{ID: id, Title: title})
	}
	return refs, nil
}

func (m *mockWorkspace) SearchDocuments(ctx context.Context, query string) ([]driven.DocumentRef, error) {
	m.record("SearchDocuments")
	return nil, nil
}

func (m *mockWorkspace) DocumentExists(ctx context.Context, title string) (string, bool, error) {
	m.record("DocumentExists")
	if m.existsErr != nil {
		return "", false, m.existsErr
	}
	for docTitle, id := range m.documents {
		if strings.EqualFold(docTitle, title) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *mockWorkspace) CreateDocument(ctx context.Context, title string) (string, error) {
	m.record("CreateDocument:" + title)
	m.nextDocID++
	id := fmt.Sprintf("doc-%d", m.nextDocID)
	m.documents[title] = id
	return id, nil
}

func (m *mockWorkspace) DeleteDocument(ctx context.Context, id string) error {
	m.record("DeleteDocument:" + id)
	for title, docID := range m.documents {
		if docID == id {
			delete(m.documents, title)
		}
	}
	return nil
}

func (m *mockWorkspace) AppendMarkdown(ctx context.Context, pageID, markdown, position string) error {
	m.record("AppendMarkdown")
	if m.appendMarkdownEr != nil {
		return m.appendMarkdownEr
	}
	m.markdown[pageID] = append(m.markdown[pageID], markdown)
	return nil
}

func (m *mockWorkspace) ListBlocks(ctx context.Context, pageID string) ([]driven.Block, error) {
	m.record("ListBlocks")
	return m.blocks[pageID], nil
}

func (m *mockWorkspace) UpdateBlock(ctx context.Context, blockID, content string) error {
	m.record("UpdateBlock:" + blockID)
	return nil
}

func (m *mockWorkspace) DeleteBlock(ctx context.Context, blockID string) error {
	m.record("DeleteBlock:" + blockID)
	return nil
}

func (m *mockWorkspace) CreateCollection(ctx context.Context, pageID string, schema driven.CollectionSchema, position string) (string, error) {
	m.record("CreateCollection:" + schema.Name)
	if m.createColErr != nil {
		return "", m.createColErr
	}
	id := fmt.Sprintf("col-%d", len(m.collections)+1)
	m.collections = append(m.collections, schema.Name)
	m.schemas[id] = schema
	return id, nil
}

func (m *mockWorkspace) AddCollectionItems(ctx context.Context, collectionID string, items []driven.CollectionItem) error {
	m.record("AddCollectionItems:" + collectionID)
	if m.addItemsErr != nil {
		return m.addItemsErr
	}
	m.items[collectionID] = append(m.items[collectionID], items...)
	return nil
}

func (m *mockWorkspace) UpdateMainDocument(ctx context.Context, update driven.MainDocumentUpdate) error {
	m.record("UpdateMainDocument:" + update.SectionToUpdate)
	return nil
}

func (m *mockWorkspace) RegenerateSection(ctx context.Context, pageID, sectionName, newMarkdown string) error {
	m.record("RegenerateSection:" + sectionName)
	return nil
}

type mockWorkspaceFactory struct {
	workspace *mockWorkspace
	err       error
}

var _ driven.WorkspaceFactory = (*mockWorkspaceFactory)(nil)

func (f *mockWorkspaceFactory) New(ctx context.Context, endpoint string) (driven.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.workspace, nil
}

// mockOracle is a hand-written driven.Oracle double.
type mockOracle struct {
	repoAnalysis *domain.RepoAnalysis
	repoErr      error

	changeAnalysis *domain.ChangeAnalysis
	changeErr      error

	significance *domain.CommitSignificance
	commitsErr   error
}

var _ driven.Oracle = (*mockOracle)(nil)

func (m *mockOracle) AnalyseRepository(ctx context.Context, repoKey string, signals *domain.RepoSignals) (*domain.RepoAnalysis, error) {
	if m.repoErr != nil {
		return nil, m.repoErr
	}
	analysis := *m.repoAnalysis
	return &analysis, nil
}

func (m *mockOracle) AnalysePR(ctx context.Context, repoKey string, pr *domain.PullRequest) (*domain.ChangeAnalysis, error) {
	if m.changeErr != nil {
		return nil, m.changeErr
	}
	analysis := *m.changeAnalysis
	return &analysis, nil
}

func (m *mockOracle) AnalyseCommits(ctx context.Context, repoKey string, commits []domain.Commit, files []domain.PRFile) (*domain.CommitSignificance, error) {
	if m.commitsErr != nil {
		return nil, m.commitsErr
	}
	significance := *m.significance
	return &significance, nil
}

// mockProcessor records the change-processor calls the engine makes.
type mockProcessor struct {
	mu         sync.Mutex
	prCalls    []int
	batches    [][]domain.Commit
	prErr      map[int]error
	commitsErr error
	onPR       func(prNumber int) // runs inside OnPullRequest, before it returns
	inFlight   int
	overlap    bool
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{prErr: make(map[int]error)}
}

func (m *mockProcessor) OnPullRequest(ctx context.Context, conn *domain.ConnectionRecord, prNumber int) error {
	m.mu.Lock()
	m.prCalls = append(m.prCalls, prNumber)
	err := m.prErr[prNumber]
	hook := m.onPR
	m.mu.Unlock()
	if hook != nil {
		hook(prNumber)
	}
	return err
}

func (m *mockProcessor) OnCommits(ctx context.Context, conn *domain.ConnectionRecord, commits []domain.Commit) error {
	m.mu.Lock()
	m.batches = append(m.batches, commits)
	m.inFlight++
	if m.inFlight > 1 {
		m.overlap = true
	}
	m.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	m.inFlight--
	err := m.commitsErr
	m.mu.Unlock()
	return err
}
