package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Diff summarizes how after differs from before, one line per changed
// attribute. It returns nil when nothing changed. Conditions are compared
// as sets; updates and logging by their canonical JSON.
func Diff(before, after Scenario) []string {
	var changes []string

	if before.Name != after.Name {
		changes = append(changes, fmt.Sprintf("Name changed from '%s' to '%s'", before.Name, after.Name))
	}
	if before.Description != after.Description {
		changes = append(changes, "Description updated")
	}
	if before.ReasonCode != after.ReasonCode {
		changes = append(changes, fmt.Sprintf("Reason code changed from '%s' to '%s'", before.ReasonCode, after.ReasonCode))
	}
	if !slices.Equal(levelStrings(before.ProcessLevels), levelStrings(after.ProcessLevels)) {
		changes = append(changes, fmt.Sprintf("Process levels changed from %s to %s",
			compactJSON(before.ProcessLevels), compactJSON(after.ProcessLevels)))
	}
	if flagText(before.IsActive) != flagText(after.IsActive) {
		changes = append(changes, fmt.Sprintf("Active flag changed from %s to %s",
			flagText(before.IsActive), flagText(after.IsActive)))
	}
	if flagText(before.IsSkipScenario) != flagText(after.IsSkipScenario) {
		changes = append(changes, fmt.Sprintf("Skip flag changed from %s to %s",
			flagText(before.IsSkipScenario), flagText(after.IsSkipScenario)))
	}
	if !before.Conditions.Equal(after.Conditions) {
		changes = append(changes, "Conditions updated")
	}
	if !slices.Equal(before.VariablesRequired, after.VariablesRequired) {
		changes = append(changes, fmt.Sprintf("Required variables changed from %s to %s",
			compactJSON(nonNil(before.VariablesRequired)), compactJSON(nonNil(after.VariablesRequired))))
	}
	if before.Logging != after.Logging {
		changes = append(changes, "Logging configuration updated")
	}
	if !sameJSON(before.Updates, after.Updates) {
		changes = append(changes, "Updates section modified")
	}
	if keys := changedExtraKeys(before.Extra, after.Extra); len(keys) > 0 {
		changes = append(changes, "Other attributes changed: "+strings.Join(keys, ", "))
	}
	return changes
}

// flagText renders an optional flag; an absent flag is "unset".
func flagText(b *bool) string {
	if b == nil {
		return "unset"
	}
	return strconv.FormatBool(*b)
}

func levelStrings(levels []ProcessLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.String()
	}
	return out
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sameJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func changedExtraKeys(before, after map[string]json.RawMessage) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || !bytes.Equal(old, v) {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
