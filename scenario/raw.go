/*
raw.go - Not-yet-normalized scenario input

PURPOSE:
  Input arrives in several schema versions. RawScenario records which
  version each attribute came in, so the Normalizer can migrate it once at
  the boundary. Absent attributes are nil so the Merger can fall back to
  the existing record for them.

SCHEMA FORMS:
  updates:     absent | flat legacy map | structured {order, fields}
  conditions:  absent | mapping | malformed (present but not a mapping)
  process:     process_levels (plural) and/or process_level (singular)

SEE ALSO:
  - factory/scenario.go: Decodes JSON into RawScenario
  - normalize.go: Consumes RawScenario
*/
package scenario

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RAW VALUE - One legacy field value
// =============================================================================

// ValueKind classifies a legacy field value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueNumber
	ValueString
	ValueBaseMultiplier
	ValueOther
)

// RawValue is one legacy field value.
//
//	ValueNull:           JSON null
//	ValueNumber:         Text holds the number as written
//	ValueString:         Text holds the string
//	ValueBaseMultiplier: {base, multiplier}; Text holds the compact object
//	ValueOther:          anything else; Text holds compact JSON
type RawValue struct {
	Kind           ValueKind
	Text           string
	Base           string
	Multiplier     decimal.Decimal
	MultiplierText string
}

func NullValue() RawValue { return RawValue{Kind: ValueNull} }

func NumberValue(text string) RawValue { return RawValue{Kind: ValueNumber, Text: text} }

func StringValue(s string) RawValue { return RawValue{Kind: ValueString, Text: s} }

// BaseMultiplierValue builds a {base, multiplier} value.
func BaseMultiplierValue(base, multiplier string) (RawValue, error) {
	d, err := decimal.NewFromString(multiplier)
	if err != nil {
		return RawValue{}, err
	}
	obj, err := json.Marshal(struct {
		Base       string      `json:"base"`
		Multiplier json.Number `json:"multiplier"`
	}{base, json.Number(multiplier)})
	if err != nil {
		return RawValue{}, err
	}
	return RawValue{
		Kind:           ValueBaseMultiplier,
		Text:           string(obj),
		Base:           base,
		Multiplier:     d,
		MultiplierText: multiplier,
	}, nil
}

// OtherValue wraps compact JSON of an unclassified value.
func OtherValue(compactJSON string) RawValue { return RawValue{Kind: ValueOther, Text: compactJSON} }

// MarshalJSON writes the value back in its legacy shape.
func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueNumber:
		return []byte(v.Text), nil
	case ValueString:
		return json.Marshal(v.Text)
	default:
		if v.Text == "" {
			return []byte("null"), nil
		}
		return []byte(v.Text), nil
	}
}

// RawField is one named legacy field value. Order of RawFields is the
// order fields were written in the source record.
type RawField struct {
	Name  string
	Value RawValue
}

// =============================================================================
// RAW UPDATES / CONDITIONS - Schema-version tagged unions
// =============================================================================

// UpdatesForm tells which schema version an updates attribute used.
type UpdatesForm int

const (
	UpdatesAbsent UpdatesForm = iota
	UpdatesFlat
	UpdatesStructured
)

// RawUpdates is an updates attribute in whichever form it arrived.
type RawUpdates struct {
	Form       UpdatesForm
	Flat       []RawField
	Structured Updates
}

// FlatUpdates wraps legacy fields.
func FlatUpdates(fields ...RawField) RawUpdates {
	return RawUpdates{Form: UpdatesFlat, Flat: fields}
}

// StructuredUpdates wraps an already-canonical updates value.
func StructuredUpdates(u Updates) RawUpdates {
	return RawUpdates{Form: UpdatesStructured, Structured: u}
}

// ConditionsForm tells whether conditions were absent, a mapping, or
// something else.
type ConditionsForm int

const (
	ConditionsAbsent ConditionsForm = iota
	ConditionsMapping
	ConditionsMalformed
)

// RawConditions is a conditions attribute as it arrived. Buckets missing
// from a mapping are nil.
type RawConditions struct {
	Form      ConditionsForm
	Required  []string
	Forbidden []string
	Optional  []string
}

// =============================================================================
// RAW SCENARIO
// =============================================================================

// RawScenario is one input record. Nil means the attribute was absent.
type RawScenario struct {
	ID          *int
	Name        *string
	Description *string
	ReasonCode  *string

	// ProcessLevel is the deprecated singular spelling.
	ProcessLevel     *ProcessLevel
	ProcessLevels    []ProcessLevel
	HasProcessLevels bool

	IsActive       *bool
	IsSkipScenario *bool

	Conditions RawConditions
	Updates    RawUpdates

	Extra map[string]json.RawMessage
}

// Label identifies the record in messages.
func (r RawScenario) Label() string {
	if r.ID != nil {
		return "#" + strconv.Itoa(*r.ID)
	}
	if r.Name != nil {
		return *r.Name
	}
	return "<unnamed>"
}

// Raw returns the scenario as a structured RawScenario with every attribute
// present. Normalizing it yields the scenario back.
func (s Scenario) Raw() RawScenario {
	c := s.Clone()
	id := c.ID
	return RawScenario{
		ID:               &id,
		Name:             &c.Name,
		Description:      &c.Description,
		ReasonCode:       &c.ReasonCode,
		ProcessLevels:    slices.Clone(c.ProcessLevels),
		HasProcessLevels: true,
		IsActive:         c.IsActive,
		IsSkipScenario:   c.IsSkipScenario,
		Conditions: RawConditions{
			Form:      ConditionsMapping,
			Required:  c.Conditions.Required,
			Forbidden: c.Conditions.Forbidden,
			Optional:  c.Conditions.Optional,
		},
		Updates: StructuredUpdates(c.Updates),
		Extra:   c.Extra,
	}
}

// StringPtr is a small helper for building RawScenario literals.
func StringPtr(s string) *string { return &s }

// IntPtr is a small helper for building RawScenario literals.
func IntPtr(n int) *int { return &n }

// BoolPtr is a small helper for building RawScenario literals.
func BoolPtr(b bool) *bool { return &b }
