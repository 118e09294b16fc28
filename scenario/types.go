/*
Package scenario provides the scenario normalization and merge engine.

PURPOSE:
  Scenarios are the rule records that drive the leave feeder: a set of
  conditions plus the field updates to apply when they match. They have
  been authored in several shapes over time (flat legacy updates, the
  structured {order, fields} form, singular process_level). This package
  classifies raw values, parses the small arithmetic grammar used in
  field sources, derives required variables, and merges new records into
  an existing collection without touching entries that are already right.

KEY CONCEPTS IN THIS FILE (types.go):
  - Scenario: one canonical rule record
  - Updates: ordered field writes ({order, fields})
  - FieldDescriptor: typed source for one field
  - Calculation / Operand: binary arithmetic over variables and constants
  - Collection: the persisted {"scenarios": [...]} document

DESIGN PRINCIPLES:
  1. Canonical only: nothing downstream of normalization sees legacy shapes
  2. Fresh values: normalization builds new records, never patches inputs
  3. Derived data is recomputed: variables_required and logging are never
     hand-maintained

SEE ALSO:
  - raw.go: Tagged union for not-yet-normalized input
  - normalize.go: Scenario Normalizer
  - merge.go: Scenario Merger
*/
package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD TYPES
// =============================================================================

// FieldType is the value type the feeder writes for a field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeDouble FieldType = "double"
	TypeDate   FieldType = "date"
)

// Operation is a binary arithmetic operation.
type Operation string

const (
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// =============================================================================
// CALCULATION - Binary arithmetic over two operands
// =============================================================================

// Operand is exactly one of a variable reference or a numeric constant.
type Operand struct {
	Variable string
	Constant *decimal.Decimal
}

// VariableOperand references a named external variable.
func VariableOperand(name string) Operand {
	return Operand{Variable: name}
}

// ConstantOperand wraps a numeric constant.
func ConstantOperand(d decimal.Decimal) Operand {
	return Operand{Constant: &d}
}

// IsConstant reports whether the operand carries a constant.
func (o Operand) IsConstant() bool { return o.Constant != nil }

// String renders the operand the way it appears in a source expression.
func (o Operand) String() string {
	if o.Constant != nil {
		return o.Constant.String()
	}
	return "variables." + o.Variable
}

// Equal reports whether o and other name the same variable or constant value.
func (o Operand) Equal(other Operand) bool {
	if o.IsConstant() != other.IsConstant() {
		return false
	}
	if o.IsConstant() {
		return o.Constant.Equal(*other.Constant)
	}
	return o.Variable == other.Variable
}

// MarshalJSON writes {"variable": name} or {"constant": number}.
// Constants are written as bare JSON numbers with their exact decimal text.
func (o Operand) MarshalJSON() ([]byte, error) {
	if o.Constant != nil {
		return []byte(`{"constant":` + o.Constant.String() + `}`), nil
	}
	return json.Marshal(struct {
		Variable string `json:"variable"`
	}{o.Variable})
}

// UnmarshalJSON accepts exactly one of "variable" or "constant".
func (o *Operand) UnmarshalJSON(data []byte) error {
	var raw struct {
		Variable *string         `json:"variable"`
		Constant json.RawMessage `json:"constant"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	hasConstant := len(raw.Constant) > 0 && string(raw.Constant) != "null"
	switch {
	case raw.Variable != nil && hasConstant:
		return errors.New("operand has both variable and constant")
	case raw.Variable != nil:
		*o = VariableOperand(*raw.Variable)
	case hasConstant:
		var d decimal.Decimal
		if err := d.UnmarshalJSON(raw.Constant); err != nil {
			return fmt.Errorf("operand constant: %w", err)
		}
		*o = ConstantOperand(d)
	default:
		return errors.New("operand needs a variable or a constant")
	}
	return nil
}

// Calculation is one binary operation. Operand order is preserved as written;
// for divide the numerator comes first.
type Calculation struct {
	Operation Operation  `json:"operation"`
	Operands  [2]Operand `json:"operands"`
}

// Expression renders the calculation as a source template, e.g.
// "variables.ScheduledHours * 1.5".
func (c Calculation) Expression() string {
	op := "*"
	if c.Operation == OpDivide {
		op = "/"
	}
	return c.Operands[0].String() + " " + op + " " + c.Operands[1].String()
}

// Equal reports whether c and other have the same operation and operands.
// Constants compare by value, so 1.5 equals 1.50.
func (c Calculation) Equal(other Calculation) bool {
	if c.Operation != other.Operation {
		return false
	}
	for i := range c.Operands {
		if !c.Operands[i].Equal(other.Operands[i]) {
			return false
		}
	}
	return true
}

func (c *Calculation) clone() *Calculation {
	if c == nil {
		return nil
	}
	out := &Calculation{Operation: c.Operation}
	for i, op := range c.Operands {
		out.Operands[i] = op
		if op.Constant != nil {
			d := *op.Constant
			out.Operands[i].Constant = &d
		}
	}
	return out
}

// =============================================================================
// UPDATES - The canonical structured change set
// =============================================================================

// FieldDescriptor describes how one field is written.
type FieldDescriptor struct {
	Type        FieldType    `json:"type"`
	Source      string       `json:"source"`
	AllowNull   bool         `json:"allow_null,omitempty"`
	Calculation *Calculation `json:"calculation,omitempty"`
}

// Updates is the ordered set of field writes. Order and the keys of Fields
// always name the same fields, and Order holds no duplicates.
type Updates struct {
	Order  []string                   `json:"order"`
	Fields map[string]FieldDescriptor `json:"fields"`
}

// EmptyUpdates returns an Updates with no fields.
func EmptyUpdates() Updates {
	return Updates{Order: []string{}, Fields: map[string]FieldDescriptor{}}
}

// Clone returns a deep copy.
func (u Updates) Clone() Updates {
	out := Updates{
		Order:  slices.Clone(u.Order),
		Fields: make(map[string]FieldDescriptor, len(u.Fields)),
	}
	if out.Order == nil {
		out.Order = []string{}
	}
	for name, f := range u.Fields {
		f.Calculation = f.Calculation.clone()
		out.Fields[name] = f
	}
	return out
}

// Len returns the number of fields.
func (u Updates) Len() int { return len(u.Order) }

// =============================================================================
// CONDITIONS & LOGGING
// =============================================================================

// Conditions holds the three condition-id buckets. Each bucket is a set;
// first-seen order is kept only so output stays stable.
type Conditions struct {
	Required  []string `json:"required"`
	Forbidden []string `json:"forbidden"`
	Optional  []string `json:"optional"`
}

// EmptyConditions returns conditions with all buckets present and empty.
func EmptyConditions() Conditions {
	return Conditions{Required: []string{}, Forbidden: []string{}, Optional: []string{}}
}

// Clone returns a deep copy with duplicates removed.
func (c Conditions) Clone() Conditions {
	return Conditions{
		Required:  uniqueStrings(c.Required),
		Forbidden: uniqueStrings(c.Forbidden),
		Optional:  uniqueStrings(c.Optional),
	}
}

// Equal compares the buckets as sets.
func (c Conditions) Equal(other Conditions) bool {
	return sameSet(c.Required, other.Required) &&
		sameSet(c.Forbidden, other.Forbidden) &&
		sameSet(c.Optional, other.Optional)
}

// LogTemplates tell the feeder how to log applying a scenario's updates.
type LogTemplates struct {
	AddMessage    string `json:"add_message"`
	UpdateMessage string `json:"update_message"`
}

// IsEmpty reports whether both templates are blank.
func (l LogTemplates) IsEmpty() bool {
	return l.AddMessage == "" && l.UpdateMessage == ""
}

// =============================================================================
// PROCESS LEVEL - Integer or string organizational scope
// =============================================================================

// ProcessLevel is an organizational scope, written either as a JSON number
// or a JSON string. The original spelling is preserved.
type ProcessLevel struct {
	value  string
	quoted bool
}

// NumericLevel builds a numeric process level.
func NumericLevel(n int) ProcessLevel {
	return ProcessLevel{value: strconv.Itoa(n)}
}

// TextLevel builds a string process level.
func TextLevel(s string) ProcessLevel {
	return ProcessLevel{value: s, quoted: true}
}

// String returns the level as text.
func (p ProcessLevel) String() string { return p.value }

// IsText reports whether the level is written as a JSON string.
func (p ProcessLevel) IsText() bool { return p.quoted }

func (p ProcessLevel) MarshalJSON() ([]byte, error) {
	if p.quoted || p.value == "" {
		return json.Marshal(p.value)
	}
	return []byte(p.value), nil
}

func (p *ProcessLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = TextLevel(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("process level must be a number or string: %s", data)
	}
	*p = ProcessLevel{value: n.String()}
	return nil
}

// =============================================================================
// SCENARIO - One canonical rule record
// =============================================================================

// Scenario is one canonical rule record.
type Scenario struct {
	ID                int            `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	ProcessLevels     []ProcessLevel `json:"process_levels"`
	ReasonCode        string         `json:"reason_code"`
	IsActive          *bool          `json:"is_active,omitempty"`
	IsSkipScenario    *bool          `json:"is_skip_scenario,omitempty"`
	Conditions        Conditions     `json:"conditions"`
	VariablesRequired []string       `json:"variables_required"`
	Logging           LogTemplates   `json:"logging"`
	Updates           Updates        `json:"updates"`

	// Extra carries top-level attributes the engine does not interpret.
	// They survive normalization and merge untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// reservedKeys are the attributes the engine owns. Anything else on an
// input record is carried in Extra. process_level and fields are legacy
// spellings that are migrated and never carried through.
var reservedKeys = map[string]bool{
	"id":                 true,
	"name":               true,
	"description":        true,
	"reason_code":        true,
	"process_level":      true,
	"process_levels":     true,
	"is_active":          true,
	"is_skip_scenario":   true,
	"conditions":         true,
	"variables_required": true,
	"logging":            true,
	"updates":            true,
	"fields":             true,
}

// IsReservedKey reports whether a top-level attribute is owned by the engine.
func IsReservedKey(key string) bool { return reservedKeys[key] }

// Clone returns a deep copy.
func (s Scenario) Clone() Scenario {
	out := s
	out.ProcessLevels = slices.Clone(s.ProcessLevels)
	out.IsActive = cloneBool(s.IsActive)
	out.IsSkipScenario = cloneBool(s.IsSkipScenario)
	out.Conditions = s.Conditions.Clone()
	out.VariablesRequired = slices.Clone(s.VariablesRequired)
	out.Updates = s.Updates.Clone()
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// MarshalJSON writes the canonical form. Nil collections are written as
// empty arrays/objects and Extra attributes are appended in key order.
func (s Scenario) MarshalJSON() ([]byte, error) {
	type plain Scenario
	p := plain(s)
	if p.ProcessLevels == nil {
		p.ProcessLevels = []ProcessLevel{}
	}
	if p.VariablesRequired == nil {
		p.VariablesRequired = []string{}
	}
	p.Conditions = Conditions{
		Required:  nonNil(p.Conditions.Required),
		Forbidden: nonNil(p.Conditions.Forbidden),
		Optional:  nonNil(p.Conditions.Optional),
	}
	if p.Updates.Order == nil {
		p.Updates.Order = []string{}
	}
	if p.Updates.Fields == nil {
		p.Updates.Fields = map[string]FieldDescriptor{}
	}

	body, err := marshalUnescaped(p)
	if err != nil || len(s.Extra) == 0 {
		return body, err
	}

	keys := slices.Sorted(maps.Keys(s.Extra))
	var buf bytes.Buffer
	buf.Write(body[:len(body)-1])
	for _, k := range keys {
		if reservedKeys[k] {
			continue
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(s.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a canonical scenario. Legacy shapes are not accepted
// here; decode those through the factory package and normalize them.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	type plain Scenario
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if reservedKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	*s = Scenario(p)
	return nil
}

// =============================================================================
// COLLECTION - The persisted document
// =============================================================================

// Collection is the canonical {"scenarios": [...]} document, sorted by id.
// SchemaVersion and Metadata belong to the feeder and pass through as is.
type Collection struct {
	SchemaVersion string          `json:"schema_version,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Scenarios     []Scenario      `json:"scenarios"`
}

// Find returns the scenario with the given id.
func (c Collection) Find(id int) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// IDs returns the set of ids in the collection.
func (c Collection) IDs() map[int]bool {
	ids := make(map[int]bool, len(c.Scenarios))
	for _, s := range c.Scenarios {
		ids[s.ID] = true
	}
	return ids
}

// With returns a new collection holding c's scenarios plus added ones,
// sorted by id. Added scenarios replace existing ones with the same id.
func (c Collection) With(added ...Scenario) Collection {
	byID := make(map[int]Scenario, len(c.Scenarios)+len(added))
	for _, s := range c.Scenarios {
		byID[s.ID] = s.Clone()
	}
	for _, s := range added {
		byID[s.ID] = s.Clone()
	}
	out := Collection{
		SchemaVersion: c.SchemaVersion,
		Metadata:      slices.Clone(c.Metadata),
		Scenarios:     make([]Scenario, 0, len(byID)),
	}
	for _, s := range byID {
		out.Scenarios = append(out.Scenarios, s)
	}
	SortByID(out.Scenarios)
	return out
}

// MarshalJSON writes an empty scenarios array instead of null.
func (c Collection) MarshalJSON() ([]byte, error) {
	type plain Collection
	p := plain(c)
	if p.Scenarios == nil {
		p.Scenarios = []Scenario{}
	}
	return marshalUnescaped(p)
}

// SortByID sorts scenarios ascending by id in place.
func SortByID(scenarios []Scenario) {
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].ID < scenarios[j].ID
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// marshalUnescaped is json.Marshal without HTML escaping, so names such as
// "Sick & Safe" are stored as written.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sameSet(a, b []string) bool {
	as, bs := make(map[string]bool, len(a)), make(map[string]bool, len(b))
	for _, s := range a {
		as[s] = true
	}
	for _, s := range b {
		bs[s] = true
	}
	return maps.Equal(as, bs)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
