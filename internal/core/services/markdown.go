package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// renderMainPage builds the README-shaped header of the root document:
// overview, stack summary and a link map to the collections.
func renderMainPage(repoKey string, analysis *domain.RepoAnalysis, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", analysis.Overview.ProjectName)
	if analysis.Overview.Tagline != "" {
		fmt.Fprintf(&b, "*%s*\n\n", analysis.Overview.Tagline)
	}
	if analysis.Overview.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", analysis.Overview.Description)
	}
	if analysis.Overview.ProblemStatement != "" {
		fmt.Fprintf(&b, "**Problem.** %s\n\n", analysis.Overview.ProblemStatement)
	}

	fmt.Fprintf(&b, "Repository: `%s` | Generated: %s | Confidence: %s\n\n",
		repoKey, isoDate(now), percentLabel(analysis.Confidence))

	b.WriteString("## Tech Stack\n\n")
	writeStackLine(&b, "Frontend", analysis.TechnicalStack.Frontend)
	writeStackLine(&b, "Backend", analysis.TechnicalStack.Backend)
	writeStackLine(&b, "Database", analysis.TechnicalStack.Database)
	writeStackLine(&b, "Infrastructure", analysis.TechnicalStack.Infrastructure)
	writeStackLine(&b, "Tooling", analysis.TechnicalStack.Tooling)
	b.WriteString("\n")

	b.WriteString("## Contents\n\n")
	b.WriteString("- Release Notes\n")
	b.WriteString("- Architecture Decision Records\n")
	b.WriteString("- Engineering Tasks\n")
	b.WriteString("- Documentation History\n")

	return b.String()
}

func writeStackLine(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- **%s**: %s\n", label, strings.Join(items, ", "))
}

// renderTechnicalSpec builds the technical specification section appended
// below the header: scope, architecture, modules, APIs and concepts.
func renderTechnicalSpec(analysis *domain.RepoAnalysis) string {
	var b strings.Builder

	b.WriteString("## Scope\n\n")
	writeList(&b, "In scope", analysis.Scope.InScope)
	writeList(&b, "Out of scope", analysis.Scope.OutOfScope)
	writeList(&b, "Future considerations", analysis.Scope.FutureConsiderations)

	b.WriteString("## Architecture\n\n")
	fmt.Fprintf(&b, "**Pattern**: %s\n\n", analysis.Architecture.Pattern)
	if analysis.Architecture.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", analysis.Architecture.Description)
	}
	for _, layer := range analysis.Architecture.Layers {
		fmt.Fprintf(&b, "- **%s**: %s", layer.Name, layer.Purpose)
		if len(layer.Technologies) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(layer.Technologies, ", "))
		}
		b.WriteString("\n")
	}
	if analysis.Architecture.DataFlow != "" {
		fmt.Fprintf(&b, "\n**Data flow**: %s\n", analysis.Architecture.DataFlow)
	}
	b.WriteString("\n")

	if len(analysis.CoreModules) > 0 {
		b.WriteString("## Core Modules\n\n")
		for _, module := range analysis.CoreModules {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", module.Name, module.Purpose)
			if module.Location != "" {
				fmt.Fprintf(&b, "Location: `%s`\n\n", module.Location)
			}
			writeList(&b, "Responsibilities", module.Responsibilities)
		}
	}

	if len(analysis.PublicAPIs) > 0 {
		b.WriteString("## Public APIs\n\n")
		for _, api := range analysis.PublicAPIs {
			fmt.Fprintf(&b, "- %s\n", api)
		}
		b.WriteString("\n")
	}

	if len(analysis.InternalInterfaces) > 0 {
		b.WriteString("## Internal Interfaces\n\n")
		for _, iface := range analysis.InternalInterfaces {
			fmt.Fprintf(&b, "- %s\n", iface)
		}
		b.WriteString("\n")
	}

	if len(analysis.KeyConcepts) > 0 {
		b.WriteString("## Key Concepts\n\n")
		for _, concept := range analysis.KeyConcepts {
			fmt.Fprintf(&b, "- **%s**: %s\n", concept.Term, concept.Definition)
		}
		b.WriteString("\n")
	}

	if len(analysis.OpenQuestions) > 0 {
		b.WriteString("## Open Questions\n\n")
		for _, question := range analysis.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", question)
		}
	}

	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// renderTechStackUpdate builds the Tech Stack upsert content for a change
// that introduced new technologies.
func renderTechStackUpdate(newTechnologies []string, prNumber int) string {
	return fmt.Sprintf("## Tech Stack\n\nNew technologies (PR #%d): %s",
		prNumber, strings.Join(newTechnologies, ", "))
}

// renderUpdateLog builds the terminal update-log block for one processed PR.
func renderUpdateLog(prNumber int, summary string, now time.Time) string {
	return fmt.Sprintf("---\n*Updated %s from PR #%d: %s*", isoDate(now), prNumber, summary)
}

// renderCommitBlock builds the main-document block for a significant commit
// batch.
func renderCommitBlock(sig *domain.CommitSignificance, count int, now time.Time) string {
	return fmt.Sprintf("## Direct Commits (%s)\n\n%d significant commit(s): %s",
		isoDate(now), count, sig.Summary)
}
