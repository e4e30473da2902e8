package driven

import (
	"context"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// Oracle is the language-model provider seen as a synchronous
// prompt-to-record service. Implementations repair malformed model JSON
// before decoding; a reply that cannot be repaired is an error the caller
// recovers from with a degraded record.
type Oracle interface {
	// AnalyseRepository produces a full repository analysis from gathered
	// signals.
	AnalyseRepository(ctx context.Context, repoKey string, signals *domain.RepoSignals) (*domain.RepoAnalysis, error)

	// AnalysePR classifies one merged pull request.
	AnalysePR(ctx context.Context, repoKey string, pr *domain.PullRequest) (*domain.ChangeAnalysis, error)

	// AnalyseCommits judges the significance of a batch of direct-branch
	// commits; files are those of the newest commit.
	AnalyseCommits(ctx context.Context, repoKey string, commits []domain.Commit, files []domain.PRFile) (*domain.CommitSignificance, error)
}
