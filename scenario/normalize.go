/*
normalize.go - Scenario Normalizer

PURPOSE:
  Builds one canonical Scenario from a RawScenario. When merging, the
  previous canonical record supplies values for attributes the raw record
  omits. The result is always a fresh value; neither input is aliased.

RULES:
  id              raw, else previous; missing on both is ErrMissingID
  name            raw, else previous, else "New Scenario <id>"
  description     raw, else previous, else ""
  reason_code     raw, else previous, else ""
  process_levels  plural wins; singular becomes a one-element list;
                  else previous; else empty
  conditions      absent -> previous; mapping -> three buckets (missing
                  ones empty); anything else -> all buckets reset to empty
  updates         structured -> kept; flat -> built field by field in input
                  order; absent -> previous
  variables_required, logging
                  recomputed from the final updates every time

SEE ALSO:
  - field.go: Per-field classification
  - variables.go: Required variable extraction
  - logging.go: Log template heuristic
*/
package scenario

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
)

// Normalizer turns raw scenario records into canonical ones. It is
// stateless apart from its immutable Tables and safe for concurrent use.
type Normalizer struct {
	tables Tables
}

// NewNormalizer creates a normalizer with the given lookup tables.
func NewNormalizer(tables Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

// Tables returns the lookup tables the normalizer was built with.
func (n *Normalizer) Tables() Tables { return n.tables }

// Normalize builds a canonical scenario from raw. prev, when non-nil, is the
// existing record and is only consulted for attributes raw omits.
func (n *Normalizer) Normalize(raw RawScenario, prev *Scenario) (Scenario, error) {
	var base Scenario
	if prev != nil {
		base = prev.Clone()
	}

	var out Scenario
	switch {
	case raw.ID != nil:
		out.ID = *raw.ID
	case prev != nil:
		out.ID = base.ID
	default:
		name := ""
		if raw.Name != nil {
			name = *raw.Name
		}
		return Scenario{}, &MissingIDError{Index: -1, Name: name}
	}

	out.Name = firstOf(raw.Name, prev != nil, base.Name, "New Scenario "+strconv.Itoa(out.ID))
	out.Description = firstOf(raw.Description, prev != nil, base.Description, "")
	out.ReasonCode = firstOf(raw.ReasonCode, prev != nil, base.ReasonCode, "")

	switch {
	case raw.HasProcessLevels:
		out.ProcessLevels = slices.Clone(raw.ProcessLevels)
	case raw.ProcessLevel != nil:
		out.ProcessLevels = []ProcessLevel{*raw.ProcessLevel}
	default:
		out.ProcessLevels = base.ProcessLevels
	}
	if out.ProcessLevels == nil {
		out.ProcessLevels = []ProcessLevel{}
	}

	out.IsActive = cloneBool(base.IsActive)
	if raw.IsActive != nil {
		out.IsActive = cloneBool(raw.IsActive)
	}
	out.IsSkipScenario = cloneBool(base.IsSkipScenario)
	if raw.IsSkipScenario != nil {
		out.IsSkipScenario = cloneBool(raw.IsSkipScenario)
	}

	out.Conditions = n.normalizeConditions(raw.Conditions, base.Conditions, prev != nil)

	switch raw.Updates.Form {
	case UpdatesStructured:
		out.Updates = repairUpdates(raw.Updates.Structured)
	case UpdatesFlat:
		out.Updates = n.BuildUpdates(raw.Updates.Flat)
	default:
		out.Updates = repairUpdates(base.Updates)
	}

	out.VariablesRequired = n.RequiredVariables(out.Updates)
	out.Logging = n.LogTemplatesFor(out.Updates)
	out.Extra = mergeExtra(base.Extra, raw.Extra)

	return out, nil
}

// BuildUpdates converts legacy flat fields into the structured form,
// keeping input order. A field whose canonical name repeats an earlier one
// keeps the earlier position and takes the later value.
func (n *Normalizer) BuildUpdates(fields []RawField) Updates {
	u := EmptyUpdates()
	for _, rf := range fields {
		name := n.tables.FieldName(rf.Name)
		f, _ := n.NormalizeField(rf.Value)
		if _, exists := u.Fields[name]; !exists {
			u.Order = append(u.Order, name)
		}
		u.Fields[name] = f
	}
	return u
}

func (n *Normalizer) normalizeConditions(raw RawConditions, prev Conditions, hasPrev bool) Conditions {
	switch raw.Form {
	case ConditionsMapping:
		return Conditions{
			Required:  uniqueStrings(raw.Required),
			Forbidden: uniqueStrings(raw.Forbidden),
			Optional:  uniqueStrings(raw.Optional),
		}
	case ConditionsMalformed:
		return EmptyConditions()
	}
	if hasPrev {
		return prev.Clone()
	}
	return EmptyConditions()
}

// repairUpdates returns a deep copy of u in which Order and Fields agree:
// duplicate order entries are dropped, entries without a field are dropped,
// and fields missing from order are appended in name order. Canonical
// input comes back unchanged.
func repairUpdates(u Updates) Updates {
	out := EmptyUpdates()
	src := u.Clone()
	for _, name := range src.Order {
		f, ok := src.Fields[name]
		if !ok {
			continue
		}
		if _, dup := out.Fields[name]; dup {
			continue
		}
		out.Order = append(out.Order, name)
		out.Fields[name] = f
	}
	for _, name := range slices.Sorted(maps.Keys(src.Fields)) {
		if _, ok := out.Fields[name]; ok {
			continue
		}
		out.Order = append(out.Order, name)
		out.Fields[name] = src.Fields[name]
	}
	return out
}

func firstOf(raw *string, hasPrev bool, prev, fallback string) string {
	if raw != nil {
		return *raw
	}
	if hasPrev {
		return prev
	}
	return fallback
}

func mergeExtra(prev, raw map[string]json.RawMessage) map[string]json.RawMessage {
	if len(prev) == 0 && len(raw) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(prev)+len(raw))
	for k, v := range prev {
		out[k] = slices.Clone(v)
	}
	for k, v := range raw {
		if reservedKeys[k] {
			continue
		}
		out[k] = slices.Clone(v)
	}
	return out
}
