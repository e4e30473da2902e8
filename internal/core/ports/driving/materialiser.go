package driving

import (
	"context"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// MaterialiseRequest is the input to a repository materialisation.
type MaterialiseRequest struct {
	Owner             string
	Name              string
	Branch            string // defaults to "main"
	Credential        string
	WorkspaceEndpoint string
	User              domain.OwnerUser
}

// MaterialiseResult reports the outcome of a materialisation. AlreadyExists
// distinguishes the idempotent short-circuit from a fresh creation.
type MaterialiseResult struct {
	AlreadyExists bool
	DocumentID    string
	DocumentTitle string
	CollectionIDs domain.CollectionIDs
	Confidence    float64
	Analysis      *domain.RepoAnalysis
}

// Materialiser drives the one-shot pipeline that turns a repository into an
// engineering brain document. Idempotent by repo key.
type Materialiser interface {
	Analyse(ctx context.Context, req MaterialiseRequest) (*MaterialiseResult, error)
}
