package driving

import (
	"context"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// ChangeProcessor turns a classified change into targeted workspace
// mutations. Individual mutations are best-effort; a returned error means
// the unit of work failed and the cursor must not advance past it.
type ChangeProcessor interface {
	// OnPullRequest processes one merged pull request.
	OnPullRequest(ctx context.Context, conn *domain.ConnectionRecord, prNumber int) error

	// OnCommits processes a batch of direct-branch commits, newest last.
	OnCommits(ctx context.Context, conn *domain.ConnectionRecord, commits []domain.Commit) error
}
