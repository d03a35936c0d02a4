package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"curator/internal/pipeline"
	"curator/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(24)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderSummary formats the end-of-batch telemetry snapshot.
func renderSummary(result *pipeline.BatchResult) string {
	snap := result.Snapshot

	var b strings.Builder
	b.WriteString(headerStyle.Render("Batch "+result.RunID) + "\n")

	row := func(label string, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("events", fmt.Sprintf("%d", len(result.Outcomes)))
	row("classifications", fmt.Sprintf("%d", snap.TotalClassifications))
	for label, n := range snap.ClassificationsByLabel {
		row("  "+label, fmt.Sprintf("%d", n))
	}
	row("abstentions", fmt.Sprintf("%d", snap.Abstentions))
	row("llm failures", fmt.Sprintf("%d", snap.LLMFailures))
	row("fields accepted", fmt.Sprintf("%d", snap.FieldsAccepted))
	row("fields rejected", fmt.Sprintf("%d", snap.FieldsRejected))
	row("missing required", fmt.Sprintf("%d", snap.MissingRequiredCount))

	if failed := result.Failed(); failed > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("%d events failed", failed)) + "\n")
	}
	if incomplete := result.Incomplete(); incomplete > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d events incomplete", incomplete)) + "\n")
	}
	return b.String()
}

// renderRuns formats the audit store run listing.
func renderRuns(runs []store.RunSummary) string {
	if len(runs) == 0 {
		return "no runs recorded"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent runs") + "\n")
	for _, run := range runs {
		b.WriteString(fmt.Sprintf("%s  %s  events=%d accepted=%d rejected=%d failed=%d\n",
			run.StartedAt.Format("2006-01-02 15:04"),
			run.ID,
			run.Events,
			run.Telemetry.FieldsAccepted,
			run.Telemetry.FieldsRejected,
			run.Telemetry.EventsFailed))
	}
	return b.String()
}
