package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/warp/scenario-engine/scenario"
)

// Styles holds the terminal styles used by the renderers.
type Styles struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
	Context lipgloss.Style
	Warning lipgloss.Style
	Rule    lipgloss.Style
}

// DefaultStyles returns the colored styles for interactive terminals.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		Heading: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Added:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Removed: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Context: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Rule:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Heading: plain,
		Added:   plain,
		Removed: plain,
		Context: plain,
		Warning: plain,
		Rule:    plain,
	}
}

// Renderer formats merge output for a terminal.
type Renderer struct {
	styles Styles
}

// NewRenderer creates a renderer with the given styles.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Diff renders changed lines, green for added and red for removed.
func (r *Renderer) Diff(lines []Line) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		style := r.styles.Context
		switch l.Kind {
		case LineAdded:
			style = r.styles.Added
		case LineRemoved:
			style = r.styles.Removed
		}
		out = append(out, style.Render(l.String()))
	}
	return strings.Join(out, "\n")
}

// Change renders one scenario for interactive review.
func (r *Renderer) Change(change scenario.ScenarioChange) string {
	var b strings.Builder
	b.WriteString(r.styles.Heading.Render(fmt.Sprintf("Scenario #%d: %s", change.ID, change.Name)) + "\n")

	lines := ScenarioDiff(change.Before, change.After)
	if HasChanges(lines) {
		b.WriteString(r.Diff(lines) + "\n")
	} else {
		b.WriteString(r.styles.Title.Render("No changes") + "\n")
	}
	b.WriteString(r.styles.Rule.Render(strings.Repeat("=", ruleWide)))
	return b.String()
}

// MergeSummary renders the counts of a merge.
func (r *Renderer) MergeSummary(rep scenario.MergeReport) string {
	lines := []string{
		r.styles.Title.Render("Update Summary:"),
		r.styles.Heading.Render(fmt.Sprintf("- Found %d scenarios in source", rep.Sources)),
		r.styles.Heading.Render(fmt.Sprintf("- Updated %d scenarios in target (%d modified)", rep.Count(scenario.ChangeUpdated), rep.Modified())),
		r.styles.Heading.Render(fmt.Sprintf("- Added %d new scenarios", rep.Count(scenario.ChangeAdded))),
		r.styles.Warning.Render(fmt.Sprintf("- Skipped %d scenarios (not found in source)", rep.Skipped)),
	}
	return strings.Join(lines, "\n")
}

// AppendSummary renders the counts of an append.
func (r *Renderer) AppendSummary(res scenario.AppendResult) string {
	lines := []string{r.styles.Title.Render(fmt.Sprintf("Added %d new scenarios", len(res.Added)))}
	if res.SkippedCount() > 0 {
		lines = append(lines, r.styles.Warning.Render(fmt.Sprintf("Skipped %d scenarios with existing ids", res.SkippedCount())))
	}
	return strings.Join(lines, "\n")
}
