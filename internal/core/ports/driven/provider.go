package driven

import (
	"context"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// Provider is the typed wrapper over the version-control provider REST API.
// Implementations are created per connection per cycle so credentials are
// never stale.
type Provider interface {
	// ListTree returns the file listing of a branch.
	ListTree(ctx context.Context, owner, name, ref string) ([]domain.TreeEntry, error)

	// GetReadme returns the decoded readme, or "" if the repository has none.
	GetReadme(ctx context.Context, owner, name string) (string, error)

	// GetPackageManifests returns the per-ecosystem manifest blobs that
	// exist in the repository root. Absent manifests are omitted.
	GetPackageManifests(ctx context.Context, owner, name string) (map[string]string, error)

	// GetLanguages returns the language byte counts.
	GetLanguages(ctx context.Context, owner, name string) (map[string]int, error)

	// ListOpenIssues returns open issues, excluding pull requests.
	ListOpenIssues(ctx context.Context, owner, name string) ([]domain.IssueSummary, error)

	// ListMergedPRsSince returns merged pull requests with number greater
	// than sinceNumber, sorted ascending by number.
	ListMergedPRsSince(ctx context.Context, owner, name string, sinceNumber int) ([]domain.PRSummary, error)

	// GetPR returns the full detail of one pull request, including changed
	// files, discussion comments and reviews.
	GetPR(ctx context.Context, owner, name string, number int) (*domain.PullRequest, error)

	// GetCommit returns one commit with its changed files and stats.
	GetCommit(ctx context.Context, owner, name, sha string) (*domain.Commit, error)

	// ListCommits returns commits on ref since the given instant, sorted
	// descending by commit date.
	ListCommits(ctx context.Context, owner, name, ref string, since time.Time) ([]domain.Commit, error)

	// ListAccessibleRepos returns the repositories the credential can access.
	ListAccessibleRepos(ctx context.Context) ([]domain.Repository, error)
}

// ProviderFactory creates a Provider bound to a credential.
type ProviderFactory interface {
	New(ctx context.Context, credential string) Provider
}
