/*
Package extract turns scenario matrix spreadsheets into scenario records.

PURPOSE:
  Business users maintain scenarios as a matrix: one column per scenario,
  one row per attribute, condition or field. Extract reads that grid and
  produces the flat-field records the rest of the tooling merges.

GRID LAYOUT:
  row 0        scenario ids (columns without a numeric id are skipped)
  row 1        name
  row 2        description
  row 3        process levels, comma separated ("500, 900")
  row 4        reason code
  C<n> rows    column 0 holds the condition id; a true or non-zero cell
               marks it required, false or zero marks it forbidden, a
               blank cell leaves it out
  field rows   column 1 holds a field label from the configured list

CELL VALUES (field rows):
  blank   -> null
  FALSE   -> 0
  TRUE    -> true
  number  -> number
  other   -> string, as written

SEE ALSO:
  - reader.go: xlsx and csv grid readers
  - factory: reads the written records back ("fields" spelling)
*/
package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/warp/scenario-engine/scenario"
)

// DefaultFieldLabels are the field rows recognized in the matrix, in
// output order.
var DefaultFieldLabels = []string{
	"STD_HRS",
	"PTO_HRS",
	"LOA_NO_HRS_PAID",
	"BASIC_SICK_HRS",
	"BRIDGEPORT_SICK_HRS",
	"LM_PTO_HRS",
	"LM_SICK_HRS",
	"ATO_HRS",
	"EXEMPT_HRS",
	"EXEC_NOTE",
	"PHYS_NOTE",
	"MANUAL_CHECK",
	"ENTRY_DATE",
	"AUTH_BY",
	"CHECK_KRONOS",
}

const (
	rowID = iota
	rowName
	rowDescription
	rowProcessLevels
	rowReasonCode
)

var conditionLabel = regexp.MustCompile(`^C\d+`)

// =============================================================================
// RECORD
// =============================================================================

// Field is one extracted field cell.
type Field struct {
	Name  string
	Value scenario.RawValue
}

// Record is one scenario column.
type Record struct {
	ID            int
	Name          *string
	Description   *string
	ProcessLevels []scenario.ProcessLevel
	ReasonCode    *string
	Required      []string
	Forbidden     []string
	Fields        []Field
}

// MarshalJSON writes the record with keys in the order the matrix tools
// have always produced.
func (r Record) MarshalJSON() ([]byte, error) {
	type conditions struct {
		Forbidden []string `json:"forbidden"`
		Required  []string `json:"required"`
	}
	out := struct {
		ID             int                     `json:"id"`
		Name           *string                 `json:"name"`
		Description    *string                 `json:"description"`
		ProcessLevels  []scenario.ProcessLevel `json:"process_levels"`
		ReasonCode     *string                 `json:"reason_code"`
		IsSkipScenario bool                    `json:"is_skip_scenario"`
		Conditions     conditions              `json:"conditions"`
		Fields         orderedFields           `json:"fields"`
	}{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		ProcessLevels: nonNilLevels(r.ProcessLevels),
		ReasonCode:    r.ReasonCode,
		Conditions:    conditions{Forbidden: nonNil(r.Forbidden), Required: nonNil(r.Required)},
		Fields:        r.Fields,
	}
	return json.Marshal(out)
}

type orderedFields []Field

func (f orderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		val, err := field.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Raw converts the record to a RawScenario with flat updates.
func (r Record) Raw() scenario.RawScenario {
	skip := false
	fields := make([]scenario.RawField, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, scenario.RawField{Name: f.Name, Value: f.Value})
	}
	return scenario.RawScenario{
		ID:               scenario.IntPtr(r.ID),
		Name:             r.Name,
		Description:      r.Description,
		ReasonCode:       r.ReasonCode,
		ProcessLevels:    nonNilLevels(r.ProcessLevels),
		HasProcessLevels: true,
		IsSkipScenario:   &skip,
		Conditions: scenario.RawConditions{
			Form:      scenario.ConditionsMapping,
			Required:  r.Required,
			Forbidden: r.Forbidden,
		},
		Updates: scenario.FlatUpdates(fields...),
	}
}

// Raws converts every record.
func Raws(records []Record) []scenario.RawScenario {
	out := make([]scenario.RawScenario, len(records))
	for i, r := range records {
		out[i] = r.Raw()
	}
	return out
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor reads scenario records out of a matrix grid.
type Extractor struct {
	labels []string
}

// NewExtractor creates an extractor for the given field labels. Nil uses
// DefaultFieldLabels.
func NewExtractor(labels []string) *Extractor {
	if labels == nil {
		labels = DefaultFieldLabels
	}
	return &Extractor{labels: append([]string(nil), labels...)}
}

// Extract returns one record per scenario column, sorted by id.
func (e *Extractor) Extract(grid [][]string) []Record {
	var condRows []int
	fieldRows := make(map[string]int)
	known := make(map[string]bool, len(e.labels))
	for _, l := range e.labels {
		known[l] = true
	}
	for r := range grid {
		if label := cell(grid, r, 0); conditionLabel.MatchString(label) {
			condRows = append(condRows, r)
		}
		label := strings.TrimSpace(cell(grid, r, 1))
		if _, seen := fieldRows[label]; known[label] && !seen {
			fieldRows[label] = r
		}
	}

	var records []Record
	for col := 0; col < width(grid); col++ {
		id, ok := parseID(cell(grid, rowID, col))
		if !ok {
			continue
		}
		rec := Record{
			ID:            id,
			Name:          text(cell(grid, rowName, col)),
			Description:   text(cell(grid, rowDescription, col)),
			ProcessLevels: splitProcessLevels(cell(grid, rowProcessLevels, col)),
			ReasonCode:    text(cell(grid, rowReasonCode, col)),
			Required:      []string{},
			Forbidden:     []string{},
		}

		for _, r := range condRows {
			condID := strings.TrimSpace(cell(grid, r, 0))
			switch truthy(cell(grid, r, col)) {
			case isTrue:
				rec.Required = append(rec.Required, condID)
			case isFalse:
				rec.Forbidden = append(rec.Forbidden, condID)
			}
		}

		for _, label := range e.labels {
			r, ok := fieldRows[label]
			if !ok {
				continue
			}
			rec.Fields = append(rec.Fields, Field{Name: label, Value: cellValue(cell(grid, r, col))})
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// =============================================================================
// CELL HELPERS
// =============================================================================

func cell(grid [][]string, r, c int) string {
	if r < 0 || r >= len(grid) || c < 0 || c >= len(grid[r]) {
		return ""
	}
	return grid[r][c]
}

func width(grid [][]string) int {
	w := 0
	for _, row := range grid {
		w = max(w, len(row))
	}
	return w
}

func parseID(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func text(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func splitProcessLevels(s string) []scenario.ProcessLevel {
	levels := []scenario.ProcessLevel{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			levels = append(levels, scenario.NumericLevel(n))
		} else {
			levels = append(levels, scenario.TextLevel(part))
		}
	}
	return levels
}

type truth int

const (
	isBlank truth = iota
	isTrue
	isFalse
)

func truthy(s string) truth {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return isBlank
	case "true":
		return isTrue
	case "false":
		return isFalse
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return isBlank
	}
	if f == 0 {
		return isFalse
	}
	return isTrue
}

func cellValue(s string) scenario.RawValue {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "":
		return scenario.NullValue()
	case "false":
		return scenario.NumberValue("0")
	case "true":
		return scenario.OtherValue("true")
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f == 0 {
			return scenario.NumberValue("0")
		}
		return scenario.NumberValue(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return scenario.StringValue(s)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilLevels(in []scenario.ProcessLevel) []scenario.ProcessLevel {
	if in == nil {
		return []scenario.ProcessLevel{}
	}
	return in
}
