package anthropic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// Prompt size limits. Signals beyond these are truncated rather than
// rejected; the model sees the head of each signal.
const (
	maxTreeEntries  = 200
	maxReadmeBytes  = 8000
	maxManifestSize = 3000
	maxIssues       = 20
	maxPatchBytes   = 2000
	maxPRFiles      = 30
)

const repositorySystem = `You are a senior engineer documenting a codebase for a team knowledge base.
Reply with a single JSON object and nothing else. Do not wrap it in markdown fences.`

const changeSystem = `You are a senior engineer triaging repository changes for documentation.
Reply with a single JSON object and nothing else. Do not wrap it in markdown fences.`

// repositoryPrompt formats the full-analysis prompt from gathered signals.
func repositoryPrompt(repoKey string, signals *domain.RepoSignals) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyse the repository %s from the signals below.\n\n", repoKey)

	if len(signals.Languages) > 0 {
		b.WriteString("Languages by bytes:\n")
		for _, lang := range sortedKeys(signals.Languages) {
			fmt.Fprintf(&b, "- %s: %d\n", lang, signals.Languages[lang])
		}
		b.WriteString("\n")
	}

	if len(signals.FileTree) > 0 {
		b.WriteString("File tree (truncated):\n")
		for i, entry := range signals.FileTree {
			if i >= maxTreeEntries {
				fmt.Fprintf(&b, "... and %d more files\n", len(signals.FileTree)-maxTreeEntries)
				break
			}
			fmt.Fprintf(&b, "%s\n", entry.Path)
		}
		b.WriteString("\n")
	}

	for _, ecosystem := range sortedKeys(signals.PackageManifests) {
		fmt.Fprintf(&b, "Manifest (%s):\n%s\n\n", ecosystem, truncate(signals.PackageManifests[ecosystem], maxManifestSize))
	}

	if signals.Readme != "" {
		fmt.Fprintf(&b, "README:\n%s\n\n", truncate(signals.Readme, maxReadmeBytes))
	}

	if len(signals.OpenIssues) > 0 {
		b.WriteString("Open issues:\n")
		for i, issue := range signals.OpenIssues {
			if i >= maxIssues {
				break
			}
			fmt.Fprintf(&b, "- #%d %s\n", issue.Number, issue.Title)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Produce a JSON object with exactly these fields:
{
  "overview": {"projectName": "", "tagline": "", "description": "", "problemStatement": ""},
  "scope": {"inScope": [], "outOfScope": [], "futureConsiderations": []},
  "architecture": {"pattern": "", "description": "", "layers": [{"name": "", "purpose": "", "technologies": []}], "dataFlow": "", "frameworks": [], "confidence": 0.0},
  "keyConcepts": [{"term": "", "definition": ""}],
  "coreModules": [{"name": "", "purpose": "", "responsibilities": [], "location": "", "dependencies": [], "keyFiles": [], "confidence": 0.0}],
  "publicAPIs": [],
  "internalInterfaces": [],
  "technicalStack": {"frontend": [], "backend": [], "database": [], "infrastructure": [], "tooling": []},
  "openQuestions": [],
  "initialADR": {"title": "", "context": "", "decision": "", "consequences": {"positive": [], "negative": [], "risks": []}},
  "engineeringTasks": [{"task": "", "priority": "High|Medium|Low", "category": "", "reasoning": ""}],
  "confidence": 0.0
}
Confidence values are real numbers in [0,1].`)

	return b.String()
}

// pullRequestPrompt formats the change-classification prompt for one merged
// pull request.
func pullRequestPrompt(repoKey string, pr *domain.PullRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Classify merged pull request #%d in %s.\n\n", pr.Number, repoKey)
	fmt.Fprintf(&b, "Title: %s\n", pr.Title)
	if pr.Body != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", truncate(pr.Body, 4000))
	}
	fmt.Fprintf(&b, "Author: %s\nBase branch: %s\n\n", pr.Author, pr.BaseRef)

	if len(pr.FilesChanged) > 0 {
		b.WriteString("Changed files:\n")
		for i, file := range pr.FilesChanged {
			if i >= maxPRFiles {
				fmt.Fprintf(&b, "... and %d more files\n", len(pr.FilesChanged)-maxPRFiles)
				break
			}
			fmt.Fprintf(&b, "- %s (+%d -%d)\n", file.Filename, file.Additions, file.Deletions)
			if file.Patch != "" && i < 5 {
				fmt.Fprintf(&b, "%s\n", truncate(file.Patch, maxPatchBytes))
			}
		}
		b.WriteString("\n")
	}

	if len(pr.Reviews) > 0 {
		b.WriteString("Reviews:\n")
		for _, review := range pr.Reviews {
			fmt.Fprintf(&b, "- %s (%s): %s\n", review.Author, review.State, truncate(review.Body, 500))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Produce a JSON object with exactly these fields:
{
  "changeType": "feature|bugfix|refactor|docs|test|security|performance|architecture|unknown",
  "impactLevel": "major|minor|patch",
  "affectedModules": [],
  "publicAPIChanges": false,
  "breakingChanges": false,
  "requiresADR": false,
  "summary": "",
  "documentationUpdates": [],
  "followUpTasks": [],
  "newTechnologies": [],
  "architectureChanges": "",
  "confidence": 0.0
}`)

	return b.String()
}

// commitsPrompt formats the significance prompt for a batch of direct-branch
// commits.
func commitsPrompt(repoKey string, commits []domain.Commit, files []domain.PRFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Judge the significance of %d direct commits in %s.\n\n", len(commits), repoKey)

	b.WriteString("Commits (newest first):\n")
	for _, commit := range commits {
		fmt.Fprintf(&b, "- %.8s %s (%s)\n", commit.SHA, firstLine(commit.Message), commit.Author)
	}
	b.WriteString("\n")

	if len(files) > 0 {
		b.WriteString("Files of the newest commit:\n")
		for i, file := range files {
			if i >= maxPRFiles {
				break
			}
			fmt.Fprintf(&b, "- %s (+%d -%d)\n", file.Filename, file.Additions, file.Deletions)
		}
		b.WriteString("\n")
	}

	b.WriteString(`A batch is significant when it changes behaviour, architecture or public
surface; formatting, typo and chore commits are not.

Produce a JSON object with exactly these fields:
{
  "isSignificant": false,
  "summary": "",
  "changeType": "feature|bugfix|refactor|docs|test|security|performance|architecture|unknown",
  "confidence": 0.0
}`)

	return b.String()
}

// truncate trims s to at most n bytes, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}

// firstLine returns the subject line of a commit message.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// sortedKeys returns map keys in stable order for deterministic prompts.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
