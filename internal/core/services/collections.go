package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// Collection names as they appear in the workspace.
const (
	collectionReleaseNotes     = "Release Notes"
	collectionADRs             = "Architecture Decision Records"
	collectionEngineeringTasks = "Engineering Tasks"
	collectionDocHistory       = "Documentation History"
)

// Content property keys. These differ per collection; an item inserted under
// the wrong key is silently dropped by the workspace.
const (
	contentKeyTitle = "title"
	contentKeyTask  = "task"
	contentKeyEvent = "event"
)

// releaseNotesSchema is the release_notes collection schema.
func releaseNotesSchema() driven.CollectionSchema {
	return driven.CollectionSchema{
		Name:       collectionReleaseNotes,
		ContentKey: contentKeyTitle,
		Properties: []driven.CollectionProperty{
			{Name: "version", Type: "text"},
			{Name: "date", Type: "date"},
			{Name: "summary", Type: "text"},
			{Name: "pr_number", Type: "number"},
			{Name: "changes", Type: "text"},
		},
	}
}

// adrsSchema is the adrs collection schema.
func adrsSchema() driven.CollectionSchema {
	return driven.CollectionSchema{
		Name:       collectionADRs,
		ContentKey: contentKeyTitle,
		Properties: []driven.CollectionProperty{
			{Name: "adr_id", Type: "text"},
			{Name: "status", Type: "text"},
			{Name: "date", Type: "date"},
			{Name: "context", Type: "text"},
			{Name: "decision", Type: "text"},
			{Name: "consequences", Type: "text"},
			{Name: "confidence", Type: "number"},
		},
	}
}

// engineeringTasksSchema is the engineering_tasks collection schema.
func engineeringTasksSchema() driven.CollectionSchema {
	return driven.CollectionSchema{
		Name:       collectionEngineeringTasks,
		ContentKey: contentKeyTask,
		Properties: []driven.CollectionProperty{
			{Name: "priority", Type: "text"},
			{Name: "category", Type: "text"},
			{Name: "reasoning", Type: "text"},
			{Name: "status", Type: "text"},
			{Name: "created_at", Type: "date"},
		},
	}
}

// docHistorySchema is the doc_history collection schema.
func docHistorySchema() driven.CollectionSchema {
	return driven.CollectionSchema{
		Name:       collectionDocHistory,
		ContentKey: contentKeyEvent,
		Properties: []driven.CollectionProperty{
			{Name: "date", Type: "date"},
			{Name: "description", Type: "text"},
			{Name: "pr_number", Type: "number"},
			{Name: "confidence", Type: "text"},
		},
	}
}

// isoDate formats a timestamp for date-typed collection properties.
func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// percentLabel formats a [0,1] confidence as "82%".
func percentLabel(confidence float64) string {
	return fmt.Sprintf("%d%%", int(confidence*100+0.5))
}

// adrConsequencesText flattens ADR consequences into one text property.
func adrConsequencesText(c domain.ADRConsequences) string {
	var parts []string
	if len(c.Positive) > 0 {
		parts = append(parts, "Positive: "+strings.Join(c.Positive, "; "))
	}
	if len(c.Negative) > 0 {
		parts = append(parts, "Negative: "+strings.Join(c.Negative, "; "))
	}
	if len(c.Risks) > 0 {
		parts = append(parts, "Risks: "+strings.Join(c.Risks, "; "))
	}
	return strings.Join(parts, " | ")
}

// adrID builds the auto-assigned ADR id from the last four digits of the
// current epoch milliseconds.
func adrID(now time.Time) string {
	ms := now.UnixMilli()
	return fmt.Sprintf("ADR-%04d", ms%10000)
}

// releaseVersion computes a calendar version for a release-notes item.
// Major impact resets the day component; patch impact marks the suffix.
func releaseVersion(impactLevel string, now time.Time) string {
	now = now.UTC()
	switch impactLevel {
	case domain.ImpactMajor:
		return fmt.Sprintf("v%d.%02d.0", now.Year(), int(now.Month()))
	case domain.ImpactPatch:
		return fmt.Sprintf("v%d.%02d.%02d-patch", now.Year(), int(now.Month()), now.Day())
	default:
		return fmt.Sprintf("v%d.%02d.%02d", now.Year(), int(now.Month()), now.Day())
	}
}
