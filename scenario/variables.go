package scenario

import (
	"regexp"
	"slices"
)

var variableRef = regexp.MustCompile(`variables\.([A-Za-z0-9_]+)`)

// VariablesIn returns the variables one field references, in first-seen
// order: every "variables.<Name>" run in the source, every variable operand
// of the calculation, and ScheduledHours for a source that is exactly the
// bare legacy token "SCHED_HRS". Other bare legacy tokens contribute nothing.
func (n *Normalizer) VariablesIn(f FieldDescriptor) []string {
	var vars []string
	for _, m := range variableRef.FindAllStringSubmatch(f.Source, -1) {
		vars = append(vars, m[1])
	}
	if f.Calculation != nil {
		for _, op := range f.Calculation.Operands {
			if !op.IsConstant() && op.Variable != "" {
				vars = append(vars, op.Variable)
			}
		}
	}
	if f.Source == legacyScheduledHours {
		vars = append(vars, n.tables.scheduledHours())
	}
	return uniqueStrings(vars)
}

// RequiredVariables returns the sorted, duplicate-free variables referenced
// anywhere in u. This is the only way variables_required is produced.
func (n *Normalizer) RequiredVariables(u Updates) []string {
	seen := make(map[string]bool)
	for _, f := range u.Fields {
		for _, v := range n.VariablesIn(f) {
			seen[v] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
