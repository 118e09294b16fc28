/*
Package report renders merge results for people.

PURPOSE:
  The update tooling never writes a collection without giving the operator
  a way to see what will change. This package produces:
    - the review file (current values, proposed values, change summary
      per scenario), written on dry runs
    - a colored line diff of each scenario's JSON for interactive review
    - the one-screen run summary

SEE ALSO:
  - scenario/diff.go: The change summary lines
  - cmd/scenarioctl: update --dry-run / --review
*/
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/warp/scenario-engine/scenario"
)

const (
	ruleWide   = 80
	ruleNarrow = 40
)

// WriteReview writes the review file for every scenario a merge touched.
func WriteReview(w io.Writer, r scenario.MergeReport) error {
	var b strings.Builder
	b.WriteString("Scenario Update Review\n")
	b.WriteString(strings.Repeat("=", len("Scenario Update Review")) + "\n\n")

	for _, change := range r.Changes {
		fmt.Fprintf(&b, "Scenario #%d: %s\n", change.ID, change.Name)
		b.WriteString(strings.Repeat("=", ruleWide) + "\n\n")

		b.WriteString("Current Values:\n")
		b.WriteString(strings.Repeat("-", ruleNarrow) + "\n")
		if change.Before != nil {
			writeValues(&b, *change.Before)
		} else {
			b.WriteString("(new scenario)\n")
		}
		b.WriteString("\n")

		b.WriteString("Proposed Values:\n")
		b.WriteString(strings.Repeat("-", ruleNarrow) + "\n")
		writeValues(&b, change.After)
		b.WriteString("\n")

		b.WriteString("Changes Summary:\n")
		b.WriteString(strings.Repeat("-", ruleNarrow) + "\n")
		b.WriteString(Summary(change) + "\n")
		b.WriteString("\n" + strings.Repeat("=", ruleWide) + "\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary returns the bulleted change list of one scenario.
func Summary(change scenario.ScenarioChange) string {
	if !change.HasChanges() {
		return "• No changes required"
	}
	lines := make([]string, len(change.Changes))
	for i, c := range change.Changes {
		lines[i] = "• " + c
	}
	return strings.Join(lines, "\n")
}

func writeValues(b *strings.Builder, s scenario.Scenario) {
	fmt.Fprintf(b, "Name: %s\n", s.Name)
	fmt.Fprintf(b, "Description: %s\n", s.Description)
	fmt.Fprintf(b, "Reason Code: %s\n", s.ReasonCode)
	fmt.Fprintf(b, "Process Levels: %s\n", indented(s.ProcessLevels))
	fmt.Fprintf(b, "Conditions: %s\n", indented(s.Conditions))
	fmt.Fprintf(b, "Variables Required: %s\n", indented(s.VariablesRequired))
	fmt.Fprintf(b, "Logging: %s\n", indented(s.Logging))
	fmt.Fprintf(b, "Updates: %s\n", indented(s.Updates))
}

// ScenarioJSON returns the scenario as indented JSON, the text the line
// diff compares.
func ScenarioJSON(s scenario.Scenario) string {
	return indented(s)
}

// ScenarioDiff returns the changed lines between two versions of a
// scenario. before may be nil for an added scenario.
func ScenarioDiff(before *scenario.Scenario, after scenario.Scenario) []Line {
	old := ""
	if before != nil {
		old = ScenarioJSON(*before) + "\n"
	}
	return LineDiff(old, ScenarioJSON(after)+"\n", false)
}

func indented(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
