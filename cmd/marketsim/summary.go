package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/talgya/market-abm/internal/export"
	"github.com/talgya/market-abm/internal/metrics"
)

var (
	okColor   = lipgloss.Color("#10B981")
	failColor = lipgloss.Color("#EF4444")
	mutedText = lipgloss.Color("#9CA3AF")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedText).
			Width(20)
)

// renderSummary formats the end-of-run panel: identity, outcome and metrics.
func renderSummary(m *export.Manifest, report metrics.Report, dir string) string {
	var b strings.Builder

	status := lipgloss.NewStyle().Bold(true).Foreground(okColor).Render("completed")
	if m.Error != "" {
		status = lipgloss.NewStyle().Bold(true).Foreground(failColor).Render("failed")
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s", m.Name, status)))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("run", m.RunID)
	row("environment", m.Environment)
	row("seed", fmt.Sprint(m.Seed))
	row("agents", fmt.Sprint(m.Agents))
	row("cycles", fmt.Sprintf("%d/%d", m.CompletedCycles, m.Cycles))
	row("duration", fmt.Sprintf("%.2fs", m.DurationSeconds))
	if len(m.Failures) > 0 {
		row("task failures", fmt.Sprint(len(m.Failures)))
	}
	if m.Partial {
		row("partial results", m.ResultsPath)
	}
	if m.Error != "" {
		row("error", lipgloss.NewStyle().Foreground(failColor).Render(m.Error))
	}

	keys := slices.Sorted(maps.Keys(report))
	if len(keys) > 0 {
		b.WriteString("\n")
		for _, k := range keys {
			row(k, fmt.Sprintf("%.6g", report[k]))
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(mutedText).Render("outputs: " + dir))

	return panelStyle.Render(b.String())
}
