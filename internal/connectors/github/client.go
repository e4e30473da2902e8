package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// DefaultTimeout is the per-call HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Ensure Client implements the provider port.
var _ driven.Provider = (*Client)(nil)

// Client wraps the go-github client with the operations the sync engine
// needs. One client is bound to one credential.
type Client struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
}

// NewClient creates a provider client with a static access token.
func NewClient(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = DefaultTimeout

	return &Client{
		gh:          gh.NewClient(tc),
		rateLimiter: NewRateLimiter(),
	}
}

// Factory creates one client per credential. Clients are created per
// connection per cycle so a revoked or rotated token never goes stale.
type Factory struct{}

var _ driven.ProviderFactory = (*Factory)(nil)

// NewFactory creates a provider factory.
func NewFactory() *Factory {
	return &Factory{}
}

// New creates a provider client bound to the credential.
func (f *Factory) New(ctx context.Context, credential string) driven.Provider {
	return NewClient(ctx, credential)
}

// ListTree returns the recursive file listing of a branch.
func (c *Client) ListTree(ctx context.Context, owner, name, ref string) ([]domain.TreeEntry, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	tree, resp, err := c.gh.Git.GetTree(ctx, owner, name, ref, true)
	if err != nil {
		return nil, c.wrapError(err, "get tree")
	}
	c.updateRateLimitFromResponse(resp)

	entries := make([]domain.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, domain.TreeEntry{
			Path: e.GetPath(),
			Size: e.GetSize(),
		})
	}
	return entries, nil
}

// GetReadme returns the decoded readme, or "" if the repository has none.
// Decode failures are fatal; a missing readme is not.
func (c *Client) GetReadme(ctx context.Context, owner, name string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	readme, resp, err := c.gh.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		if IsNotFound(c.wrapError(err, "get readme")) {
			return "", nil
		}
		return "", c.wrapError(err, "get readme")
	}
	c.updateRateLimitFromResponse(resp)

	decoded, err := readme.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode readme: %w", err)
	}
	return decoded, nil
}

// manifestFiles maps ecosystem names to the manifest paths probed for.
var manifestFiles = map[string]string{
	"npm":    "package.json",
	"go":     "go.mod",
	"python": "pyproject.toml",
	"pip":    "requirements.txt",
	"rust":   "Cargo.toml",
	"maven":  "pom.xml",
	"ruby":   "Gemfile",
}

// GetPackageManifests returns the per-ecosystem manifest blobs found in the
// repository root. Absent manifests are omitted; fetch errors skip the entry.
func (c *Client) GetPackageManifests(ctx context.Context, owner, name string) (map[string]string, error) {
	manifests := make(map[string]string)

	for ecosystem, path := range manifestFiles {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return manifests, fmt.Errorf("rate limit wait: %w", err)
		}

		content, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, name, path, nil)
		if err != nil || content == nil {
			continue
		}
		c.updateRateLimitFromResponse(resp)

		decoded, err := content.GetContent()
		if err != nil {
			continue
		}
		manifests[ecosystem] = decoded
	}

	return manifests, nil
}

// GetLanguages returns the language byte counts.
func (c *Client) GetLanguages(ctx context.Context, owner, name string) (map[string]int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	langs, resp, err := c.gh.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, c.wrapError(err, "list languages")
	}
	c.updateRateLimitFromResponse(resp)

	return langs, nil
}

// ListOpenIssues returns open issues, excluding pull requests.
func (c *Client) ListOpenIssues(ctx context.Context, owner, name string) ([]domain.IssueSummary, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var issues []domain.IssueSummary
	for {
		select {
		case <-ctx.Done():
			return issues, ctx.Err()
		default:
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, c.wrapError(err, "list issues")
		}
		c.updateRateLimitFromResponse(resp)

		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			labels := make([]string, len(issue.Labels))
			for i, l := range issue.Labels {
				labels[i] = l.GetName()
			}
			issues = append(issues, domain.IssueSummary{
				Number: issue.GetNumber(),
				Title:  issue.GetTitle(),
				Labels: labels,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return issues, nil
}

// ListAccessibleRepos returns the repositories the credential can access,
// most recently updated first.
func (c *Client) ListAccessibleRepos(ctx context.Context) ([]domain.Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Visibility:  "all",
		Affiliation: "owner,collaborator,organization_member",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var repos []domain.Repository
	for {
		select {
		case <-ctx.Done():
			return repos, ctx.Err()
		default:
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, c.wrapError(err, "list repos")
		}
		c.updateRateLimitFromResponse(resp)

		for _, r := range page {
			repos = append(repos, domain.Repository{
				FullName:      r.GetFullName(),
				Description:   r.GetDescription(),
				DefaultBranch: r.GetDefaultBranch(),
				Private:       r.GetPrivate(),
				UpdatedAt:     r.GetUpdatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return repos, nil
}

// AuthenticatedUser returns the account behind the credential.
func (c *Client) AuthenticatedUser(ctx context.Context) (*domain.OwnerUser, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, c.wrapError(err, "get user")
	}
	c.updateRateLimitFromResponse(resp)

	return &domain.OwnerUser{
		ID:          user.GetID(),
		Login:       user.GetLogin(),
		DisplayName: user.GetName(),
		Email:       user.GetEmail(),
	}, nil
}

// updateRateLimitFromResponse updates the rate limiter from response headers.
func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		remaining, limit, resetAt := c.rateLimiter.Snapshot()
		return &RateLimitError{
			ResetAt:   resetAt,
			Remaining: remaining,
			Limit:     limit,
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}
