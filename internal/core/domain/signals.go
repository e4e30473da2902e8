package domain

import "time"

// TreeEntry is one file in a repository tree listing.
type TreeEntry struct {
	Path string
	Size int
}

// RepoSignals is the raw material gathered for a repository analysis.
// Every field is best-effort; an empty value means the signal could not be
// fetched.
type RepoSignals struct {
	FileTree         []TreeEntry
	Readme           string
	PackageManifests map[string]string // ecosystem -> manifest text
	Languages        map[string]int    // language -> bytes
	OpenIssues       []IssueSummary
}

// IssueSummary is the minimal view of an open issue used in analysis prompts.
type IssueSummary struct {
	Number int
	Title  string
	Labels []string
}

// PRSummary is the listing view of a merged pull request.
type PRSummary struct {
	Number   int
	Title    string
	MergedAt time.Time
}

// PRFile is one changed file in a pull request or commit.
type PRFile struct {
	Filename  string
	Additions int
	Deletions int
	Patch     string
}

// PRComment is a discussion comment on a pull request.
type PRComment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// PRReview is a review on a pull request.
type PRReview struct {
	Author      string
	State       string
	Body        string
	SubmittedAt time.Time
}

// PullRequest is the full detail of a merged pull request.
type PullRequest struct {
	Number       int
	Title        string
	Body         string
	Author       string
	MergedAt     time.Time
	BaseRef      string
	FilesChanged []PRFile
	Comments     []PRComment
	Reviews      []PRReview
}

// Commit is one direct-branch commit.
type Commit struct {
	SHA       string
	Message   string
	Author    string
	Date      time.Time
	Files     []PRFile
	Additions int
	Deletions int
}

// Repository is the listing view of a provider repository.
type Repository struct {
	FullName      string
	Description   string
	DefaultBranch string
	Private       bool
	UpdatedAt     time.Time
}
