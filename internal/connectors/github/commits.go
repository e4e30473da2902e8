package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// ListCommits returns commits on ref since the given instant, sorted
// descending by commit date (the provider's natural order).
func (c *Client) ListCommits(ctx context.Context, owner, name, ref string, since time.Time) ([]domain.Commit, error) {
	opts := &gh.CommitsListOptions{
		SHA:         ref,
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var commits []domain.Commit
	for {
		select {
		case <-ctx.Done():
			return commits, ctx.Err()
		default:
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, c.wrapError(err, "list commits")
		}
		c.updateRateLimitFromResponse(resp)

		for _, rc := range page {
			commits = append(commits, domain.Commit{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
				Author:  rc.GetCommit().GetAuthor().GetName(),
				Date:    rc.GetCommit().GetAuthor().GetDate().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return commits, nil
}

// GetCommit returns one commit with its changed files and stats.
func (c *Client) GetCommit(ctx context.Context, owner, name, sha string) (*domain.Commit, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	rc, resp, err := c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, c.wrapError(err, "get commit")
	}
	c.updateRateLimitFromResponse(resp)

	files := make([]domain.PRFile, 0, len(rc.Files))
	for _, f := range rc.Files {
		files = append(files, domain.PRFile{
			Filename:  f.GetFilename(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}

	return &domain.Commit{
		SHA:       rc.GetSHA(),
		Message:   rc.GetCommit().GetMessage(),
		Author:    rc.GetCommit().GetAuthor().GetName(),
		Date:      rc.GetCommit().GetAuthor().GetDate().Time,
		Files:     files,
		Additions: rc.GetStats().GetAdditions(),
		Deletions: rc.GetStats().GetDeletions(),
	}, nil
}
