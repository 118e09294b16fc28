/*
Package factory provides JSON to Go scenario conversion.

PURPOSE:
  Converts scenario JSON, in any schema version that has been authored over
  time, into scenario.RawScenario values. This is the one place that knows
  how each version is spelled; the Normalizer only sees the tagged union.

ACCEPTED INPUT:
  Hand-authored batches and old collection files:
  {
    "id": 12,
    "name": "Intermittent leave",
    "process_level": 500,                      <- deprecated singular
    "conditions": {"required": ["C6"], "forbidden": ["C21"]},
    "updates": {                               <- flat legacy form
      "STD_HRS": {"base": "SCHED_HRS", "multiplier": 0.6},
      "ENTRY_DATE": "CURRENT_DATE",
      "AUTH_BY": null
    }
  }

  Structured updates ({"order": [...], "fields": {...}}) pass through.
  Spreadsheet extraction output carries its flat values under "fields"
  instead of "updates"; that spelling is accepted when "updates" is absent.

KEY FEATURES:
  - Preserves the key order of flat updates (it becomes updates.order)
  - Numbers keep their written text ("1.0" stays "1.0")
  - Unknown top-level attributes are kept in RawScenario.Extra
  - A leading UTF-8 byte order mark is ignored
  - Malformed updates and process levels are dropped with a warning; only
    a bad id fails a record

USAGE:
  f := factory.NewScenarioFactory()
  batch, err := f.ParseBatch(data)
  sources, err := factory.SourceMap(batch)

SEE ALSO:
  - scenario/raw.go: RawScenario definition
  - scenario/normalize.go: What happens to the decoded records
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/scenario-engine/scenario"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ScenarioFactory converts JSON scenarios to RawScenario values.
type ScenarioFactory struct {
	logger *zap.Logger
}

// Option configures a ScenarioFactory.
type Option func(*ScenarioFactory)

// WithLogger sets the logger that receives warnings about dropped input.
func WithLogger(l *zap.Logger) Option {
	return func(f *ScenarioFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewScenarioFactory creates a new scenario factory.
func NewScenarioFactory(opts ...Option) *ScenarioFactory {
	f := &ScenarioFactory{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseScenario parses one JSON object.
func (f *ScenarioFactory) ParseScenario(data []byte) (scenario.RawScenario, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &obj); err != nil {
		return scenario.RawScenario{}, fmt.Errorf("failed to parse scenario JSON: %w", err)
	}
	return f.FromJSON(obj)
}

// ParseBatch parses either a JSON array of scenarios or a collection-shaped
// object {"scenarios": [...]}.
func (f *ScenarioFactory) ParseBatch(data []byte) ([]scenario.RawScenario, error) {
	items, err := scenarioItems(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return nil, err
	}
	batch := make([]scenario.RawScenario, 0, len(items))
	for i, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("scenario at position %d: %w", i, err)
		}
		raw, err := f.FromJSON(obj)
		if err != nil {
			return nil, fmt.Errorf("scenario at position %d: %w", i, err)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

// ParseCollection reads a collection document and normalizes every scenario
// in it, so legacy-shaped records are migrated on load. Canonical records
// come back unchanged.
func (f *ScenarioFactory) ParseCollection(data []byte, n *scenario.Normalizer) (scenario.Collection, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	var doc struct {
		SchemaVersion string          `json:"schema_version"`
		Metadata      json.RawMessage `json:"metadata"`
		Scenarios     json.RawMessage `json:"scenarios"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return scenario.Collection{}, fmt.Errorf("%w: %v", scenario.ErrInvalidCollection, err)
	}

	c := scenario.Collection{SchemaVersion: doc.SchemaVersion, Scenarios: []scenario.Scenario{}}
	if len(doc.Metadata) > 0 && string(doc.Metadata) != "null" {
		c.Metadata = doc.Metadata
	}
	if len(doc.Scenarios) == 0 || string(doc.Scenarios) == "null" {
		return c, nil
	}

	batch, err := f.ParseBatch(doc.Scenarios)
	if err != nil {
		return scenario.Collection{}, fmt.Errorf("%w: %v", scenario.ErrInvalidCollection, err)
	}
	seen := make(map[int]bool, len(batch))
	for i, raw := range batch {
		if raw.ID == nil {
			return scenario.Collection{}, missingID(i, raw)
		}
		if seen[*raw.ID] {
			return scenario.Collection{}, fmt.Errorf("%w: %w", scenario.ErrInvalidCollection, &scenario.DuplicateIDError{ID: *raw.ID})
		}
		seen[*raw.ID] = true

		s, err := n.Normalize(raw, nil)
		if err != nil {
			return scenario.Collection{}, fmt.Errorf("scenario at position %d: %w", i, err)
		}
		c.Scenarios = append(c.Scenarios, s)
	}
	scenario.SortByID(c.Scenarios)
	return c, nil
}

// SourceMap keys a batch by scenario id. A later record with the same id
// replaces an earlier one. Records without an id are an error.
func SourceMap(batch []scenario.RawScenario) (map[int]scenario.RawScenario, error) {
	out := make(map[int]scenario.RawScenario, len(batch))
	for i, raw := range batch {
		if raw.ID == nil {
			return nil, missingID(i, raw)
		}
		out[*raw.ID] = raw
	}
	return out, nil
}

// FromJSON converts one decoded JSON object to a RawScenario.
func (f *ScenarioFactory) FromJSON(obj map[string]json.RawMessage) (scenario.RawScenario, error) {
	var raw scenario.RawScenario
	var err error

	for key, value := range obj {
		switch key {
		case "id":
			raw.ID, err = parseID(value)
		case "name":
			raw.Name = parseText(value)
		case "description":
			raw.Description = parseText(value)
		case "reason_code":
			raw.ReasonCode = parseText(value)
		case "process_level":
			raw.ProcessLevel = f.parseLevel(value)
		case "process_levels":
			raw.ProcessLevels, raw.HasProcessLevels = f.parseLevels(value)
		case "is_active":
			raw.IsActive = parseBool(value)
		case "is_skip_scenario":
			raw.IsSkipScenario = parseBool(value)
		case "conditions":
			raw.Conditions = parseConditions(value)
		case "updates", "fields", "variables_required", "logging":
			// updates/fields handled below; the rest is derived
		default:
			if raw.Extra == nil {
				raw.Extra = make(map[string]json.RawMessage)
			}
			raw.Extra[key] = value
		}
		if err != nil {
			return scenario.RawScenario{}, fmt.Errorf("%s: %w", key, err)
		}
	}

	if value, ok := obj["updates"]; ok && !isNull(value) {
		raw.Updates = f.parseUpdates(raw, "updates", value)
	} else if value, ok := obj["fields"]; ok && !isNull(value) {
		raw.Updates = f.parseUpdates(raw, "fields", value)
	}
	return raw, nil
}

// =============================================================================
// ATTRIBUTE PARSERS
// =============================================================================

func parseID(value json.RawMessage) (*int, error) {
	if isNull(value) {
		return nil, nil
	}
	v, err := decodeAny(value)
	if err != nil {
		return nil, err
	}
	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	default:
		return nil, fmt.Errorf("must be an integer, got %s", value)
	}
	if n, err := strconv.Atoi(text); err == nil {
		return &n, nil
	}
	if fl, err := strconv.ParseFloat(text, 64); err == nil && fl == float64(int(fl)) {
		n := int(fl)
		return &n, nil
	}
	return nil, fmt.Errorf("must be an integer, got %s", value)
}

func parseText(value json.RawMessage) *string {
	if isNull(value) {
		return nil
	}
	v, err := decodeAny(value)
	if err != nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		s = compact(value)
	}
	return &s
}

func parseBool(value json.RawMessage) *bool {
	var b bool
	if err := json.Unmarshal(value, &b); err != nil || isNull(value) {
		return nil
	}
	return &b
}

// parseLevel returns nil for a value that is neither a number nor a string.
func (f *ScenarioFactory) parseLevel(value json.RawMessage) *scenario.ProcessLevel {
	if isNull(value) {
		return nil
	}
	var level scenario.ProcessLevel
	if err := json.Unmarshal(value, &level); err != nil {
		f.logger.Warn("ignoring process level", zap.String("value", compact(value)))
		return nil
	}
	return &level
}

func (f *ScenarioFactory) parseLevels(value json.RawMessage) ([]scenario.ProcessLevel, bool) {
	if isNull(value) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		level := f.parseLevel(value)
		if level == nil {
			return nil, false
		}
		return []scenario.ProcessLevel{*level}, true
	}
	levels := make([]scenario.ProcessLevel, 0, len(items))
	for _, item := range items {
		if level := f.parseLevel(item); level != nil {
			levels = append(levels, *level)
		}
	}
	return levels, true
}

// parseConditions never fails: anything that is not a mapping is reported
// as malformed and reset by the normalizer.
func parseConditions(value json.RawMessage) scenario.RawConditions {
	if isNull(value) {
		return scenario.RawConditions{Form: scenario.ConditionsAbsent}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil {
		return scenario.RawConditions{Form: scenario.ConditionsMalformed}
	}
	return scenario.RawConditions{
		Form:      scenario.ConditionsMapping,
		Required:  parseIDSet(obj["required"]),
		Forbidden: parseIDSet(obj["forbidden"]),
		Optional:  parseIDSet(obj["optional"]),
	}
}

func parseIDSet(value json.RawMessage) []string {
	if len(value) == 0 || isNull(value) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		if s := parseText(value); s != nil {
			return []string{*s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := parseText(item); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// parseUpdates detects the schema version of an updates object. Anything
// that is not an object, or structured updates that do not decode, is
// treated as absent.
func (f *ScenarioFactory) parseUpdates(raw scenario.RawScenario, key string, value json.RawMessage) scenario.RawUpdates {
	members, err := orderedMembers(value)
	if err != nil {
		f.logger.Warn("ignoring updates", zap.String("scenario", raw.Label()), zap.String("key", key), zap.Error(err))
		return scenario.RawUpdates{Form: scenario.UpdatesAbsent}
	}

	keys := make(map[string]bool, len(members))
	for _, m := range members {
		keys[m.key] = true
	}
	if keys["order"] && keys["fields"] {
		var u scenario.Updates
		if err := json.Unmarshal(value, &u); err != nil {
			f.logger.Warn("ignoring structured updates", zap.String("scenario", raw.Label()), zap.Error(err))
			return scenario.RawUpdates{Form: scenario.UpdatesAbsent}
		}
		return scenario.StructuredUpdates(u)
	}

	fields := make([]scenario.RawField, 0, len(members))
	for _, m := range members {
		v, err := ParseValue(m.value)
		if err != nil {
			v = scenario.OtherValue(compact(m.value))
		}
		fields = append(fields, scenario.RawField{Name: m.key, Value: v})
	}
	return scenario.FlatUpdates(fields...)
}

// ParseValue classifies one legacy field value.
func ParseValue(value json.RawMessage) (scenario.RawValue, error) {
	v, err := decodeAny(value)
	if err != nil {
		return scenario.RawValue{}, err
	}
	switch t := v.(type) {
	case nil:
		return scenario.NullValue(), nil
	case json.Number:
		return scenario.NumberValue(t.String()), nil
	case string:
		return scenario.StringValue(t), nil
	case map[string]any:
		base, okBase := t["base"].(string)
		mult, okMult := t["multiplier"].(json.Number)
		if okBase && okMult {
			if rv, err := scenario.BaseMultiplierValue(base, mult.String()); err == nil {
				return rv, nil
			}
		}
	}
	return scenario.OtherValue(compact(value)), nil
}

// =============================================================================
// JSON HELPERS
// =============================================================================

type member struct {
	key   string
	value json.RawMessage
}

// orderedMembers returns the members of a JSON object in document order.
func orderedMembers(value json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("must be a JSON object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		members = append(members, member{key: key, value: v})
	}
	return members, nil
}

func scenarioItems(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc struct {
			Scenarios []json.RawMessage `json:"scenarios"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse scenarios JSON: %w", err)
		}
		return doc.Scenarios, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios JSON: %w", err)
	}
	return items, nil
}

func decodeAny(value json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func compact(value json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}

func isNull(value json.RawMessage) bool {
	return string(bytes.TrimSpace(value)) == "null"
}

func missingID(index int, raw scenario.RawScenario) error {
	e := &scenario.MissingIDError{Index: index}
	if raw.Name != nil {
		e.Name = *raw.Name
	}
	return e
}
