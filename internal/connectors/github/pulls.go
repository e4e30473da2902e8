package github

import (
	"context"
	"fmt"
	"sort"

	gh "github.com/google/go-github/v80/github"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// ListMergedPRsSince returns merged pull requests with number greater than
// sinceNumber, sorted ascending by number. PR numbers are assigned at
// creation, so paging newest-first stops once a whole page falls at or below
// the bound.
func (c *Client) ListMergedPRsSince(ctx context.Context, owner, name string, sinceNumber int) ([]domain.PRSummary, error) {
	opts := &gh.PullRequestListOptions{
		State:       "closed",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var merged []domain.PRSummary
	for {
		select {
		case <-ctx.Done():
			return merged, ctx.Err()
		default:
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, c.wrapError(err, "list pull requests")
		}
		c.updateRateLimitFromResponse(resp)

		pastBound := true
		for _, pr := range page {
			if pr.GetNumber() > sinceNumber {
				pastBound = false
			}
			if pr.MergedAt == nil || pr.GetNumber() <= sinceNumber {
				continue
			}
			merged = append(merged, domain.PRSummary{
				Number:   pr.GetNumber(),
				Title:    pr.GetTitle(),
				MergedAt: pr.GetMergedAt().Time,
			})
		}

		if resp.NextPage == 0 || (len(page) > 0 && pastBound) {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Number < merged[j].Number })
	return merged, nil
}

// GetPR returns the full detail of one pull request, including changed
// files, discussion comments and reviews. Comments and reviews are
// best-effort.
func (c *Client) GetPR(ctx context.Context, owner, name string, number int) (*domain.PullRequest, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, c.wrapError(err, "get pull request")
	}
	c.updateRateLimitFromResponse(resp)

	files, err := c.listPRFiles(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	comments, err := c.listPRComments(ctx, owner, name, number)
	if err != nil {
		comments = nil
	}
	reviews, err := c.listPRReviews(ctx, owner, name, number)
	if err != nil {
		reviews = nil
	}

	return &domain.PullRequest{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		Author:       pr.GetUser().GetLogin(),
		MergedAt:     pr.GetMergedAt().Time,
		BaseRef:      pr.GetBase().GetRef(),
		FilesChanged: files,
		Comments:     comments,
		Reviews:      reviews,
	}, nil
}

// listPRFiles returns the changed files of a pull request.
func (c *Client) listPRFiles(ctx context.Context, owner, name string, number int) ([]domain.PRFile, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var files []domain.PRFile
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			return nil, c.wrapError(err, "list pull request files")
		}
		c.updateRateLimitFromResponse(resp)

		for _, f := range page {
			files = append(files, domain.PRFile{
				Filename:  f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

// listPRComments returns the discussion comments of a pull request.
func (c *Client) listPRComments(ctx context.Context, owner, name string, number int) ([]domain.PRComment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var comments []domain.PRComment
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, c.wrapError(err, "list comments")
		}
		c.updateRateLimitFromResponse(resp)

		for _, comment := range page {
			comments = append(comments, domain.PRComment{
				Author:    comment.GetUser().GetLogin(),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return comments, nil
}

// listPRReviews returns the reviews of a pull request.
func (c *Client) listPRReviews(ctx context.Context, owner, name string, number int) ([]domain.PRReview, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var reviews []domain.PRReview
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, c.wrapError(err, "list reviews")
		}
		c.updateRateLimitFromResponse(resp)

		for _, review := range page {
			reviews = append(reviews, domain.PRReview{
				Author:      review.GetUser().GetLogin(),
				State:       review.GetState(),
				Body:        review.GetBody(),
				SubmittedAt: review.GetSubmittedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return reviews, nil
}
