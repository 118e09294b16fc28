package factory_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/scenario-engine/factory"
	"github.com/warp/scenario-engine/scenario"
)

func TestParseScenario_Legacy(t *testing.T) {
	// GIVEN: A legacy record with the singular process level and flat updates
	// WHEN: Parsed
	// THEN: Attributes land in RawScenario with field order preserved

	f := factory.NewScenarioFactory()
	raw, err := f.ParseScenario([]byte(`{
		"id": 12,
		"name": "Intermittent leave",
		"process_level": 500,
		"reason_code": "ILOA",
		"is_active": true,
		"conditions": {"required": ["C6"], "forbidden": ["C21"]},
		"updates": {
			"STD_HRS": {"base": "SCHED_HRS", "multiplier": 0.60},
			"ENTRY_DATE": "CURRENT_DATE",
			"PTO_HRS": 1.0,
			"AUTH_BY": null
		},
		"owner": "payroll"
	}`))
	require.NoError(t, err)

	require.NotNil(t, raw.ID)
	assert.Equal(t, 12, *raw.ID)
	assert.Equal(t, "Intermittent leave", *raw.Name)
	require.NotNil(t, raw.ProcessLevel)
	assert.Equal(t, "500", raw.ProcessLevel.String())
	assert.False(t, raw.HasProcessLevels)
	assert.True(t, *raw.IsActive)
	assert.Nil(t, raw.IsSkipScenario)

	assert.Equal(t, scenario.ConditionsMapping, raw.Conditions.Form)
	assert.Equal(t, []string{"C6"}, raw.Conditions.Required)
	assert.Nil(t, raw.Conditions.Optional)

	require.Equal(t, scenario.UpdatesFlat, raw.Updates.Form)
	require.Len(t, raw.Updates.Flat, 4)
	names := make([]string, len(raw.Updates.Flat))
	for i, fld := range raw.Updates.Flat {
		names[i] = fld.Name
	}
	assert.Equal(t, []string{"STD_HRS", "ENTRY_DATE", "PTO_HRS", "AUTH_BY"}, names)

	std := raw.Updates.Flat[0].Value
	assert.Equal(t, scenario.ValueBaseMultiplier, std.Kind)
	assert.Equal(t, "SCHED_HRS", std.Base)
	assert.Equal(t, "0.60", std.MultiplierText)
	assert.Equal(t, scenario.ValueString, raw.Updates.Flat[1].Value.Kind)
	assert.Equal(t, "1.0", raw.Updates.Flat[2].Value.Text)
	assert.Equal(t, scenario.ValueNull, raw.Updates.Flat[3].Value.Kind)

	assert.JSONEq(t, `"payroll"`, string(raw.Extra["owner"]))
}

func TestParseScenario_Structured(t *testing.T) {
	f := factory.NewScenarioFactory()
	raw, err := f.ParseScenario([]byte(`{
		"id": 1,
		"process_levels": [500, "ALL"],
		"updates": {
			"order": ["STD_HOURS"],
			"fields": {"STD_HOURS": {"type": "double", "source": "variables.ScheduledHours", "allow_null": false}}
		}
	}`))
	require.NoError(t, err)

	assert.True(t, raw.HasProcessLevels)
	require.Len(t, raw.ProcessLevels, 2)
	assert.False(t, raw.ProcessLevels[0].IsText())
	assert.True(t, raw.ProcessLevels[1].IsText())

	require.Equal(t, scenario.UpdatesStructured, raw.Updates.Form)
	assert.Equal(t, []string{"STD_HOURS"}, raw.Updates.Structured.Order)
	assert.Equal(t, "variables.ScheduledHours", raw.Updates.Structured.Fields["STD_HOURS"].Source)
}

func TestParseScenario_FieldsSpelling(t *testing.T) {
	// GIVEN: Extraction output with "fields" instead of "updates"
	// WHEN: Parsed
	// THEN: fields become flat updates, but "updates" wins when both exist

	f := factory.NewScenarioFactory()

	raw, err := f.ParseScenario([]byte(`{"id": 3, "fields": {"MANUAL_CHECK": "Y"}}`))
	require.NoError(t, err)
	require.Equal(t, scenario.UpdatesFlat, raw.Updates.Form)
	assert.Equal(t, "MANUAL_CHECK", raw.Updates.Flat[0].Name)

	raw, err = f.ParseScenario([]byte(`{"id": 3, "fields": {"A": 1}, "updates": {"B": 2}}`))
	require.NoError(t, err)
	require.Len(t, raw.Updates.Flat, 1)
	assert.Equal(t, "B", raw.Updates.Flat[0].Name)
}

func TestParseScenario_IDForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
		err   bool
	}{
		{"integer", `{"id": 7}`, scenario.IntPtr(7), false},
		{"integral float", `{"id": 7.0}`, scenario.IntPtr(7), false},
		{"numeric string", `{"id": " 7 "}`, scenario.IntPtr(7), false},
		{"null", `{"id": null}`, nil, false},
		{"absent", `{}`, nil, false},
		{"fraction", `{"id": 7.5}`, nil, true},
		{"word", `{"id": "seven"}`, nil, true},
		{"object", `{"id": {}}`, nil, true},
	}

	f := factory.NewScenarioFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := f.ParseScenario([]byte(tt.input))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.ID)
		})
	}
}

func TestParseScenario_Lenient(t *testing.T) {
	// GIVEN: Odd attribute shapes seen in hand-edited files
	// WHEN: Parsed
	// THEN: Scalars are stringified, a non-bool flag is ignored and
	//       non-mapping conditions are flagged as malformed

	f := factory.NewScenarioFactory()
	raw, err := f.ParseScenario([]byte("\xEF\xBB\xBF" + `{
		"id": 4,
		"reason_code": 1234,
		"is_active": "yes",
		"conditions": ["C6"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "1234", *raw.ReasonCode)
	assert.Nil(t, raw.IsActive)
	assert.Equal(t, scenario.ConditionsMalformed, raw.Conditions.Form)
}

func TestParseBatch_MalformedUpdatesAreDropped(t *testing.T) {
	// GIVEN: A batch where one record's updates is an array and another's a string
	// WHEN: Parsed
	// THEN: The batch parses, those updates count as absent and a warning is logged

	core, logs := observer.New(zap.WarnLevel)
	f := factory.NewScenarioFactory(factory.WithLogger(zap.New(core)))

	batch, err := f.ParseBatch([]byte(`[
		{"id": 1, "updates": {"A": 1}},
		{"id": 2, "updates": ["x"]},
		{"id": 3, "fields": "STD_HRS"},
		{"id": 4, "updates": {"order": 5, "fields": {}}}
	]`))
	require.NoError(t, err)
	require.Len(t, batch, 4)

	assert.Equal(t, scenario.UpdatesFlat, batch[0].Updates.Form)
	assert.Equal(t, scenario.UpdatesAbsent, batch[1].Updates.Form)
	assert.Equal(t, scenario.UpdatesAbsent, batch[2].Updates.Form)
	assert.Equal(t, scenario.UpdatesAbsent, batch[3].Updates.Form)
	assert.Equal(t, 3, logs.Len())

	n := scenario.NewNormalizer(scenario.DefaultTables())
	s, err := n.Normalize(batch[1], nil)
	require.NoError(t, err)
	assert.Empty(t, s.Updates.Order)
}

func TestParseScenario_MalformedProcessLevels(t *testing.T) {
	// GIVEN: Process levels holding a bool and an object
	// WHEN: Parsed
	// THEN: Those elements are skipped and the rest are kept

	core, logs := observer.New(zap.WarnLevel)
	f := factory.NewScenarioFactory(factory.WithLogger(zap.New(core)))

	raw, err := f.ParseScenario([]byte(`{"id": 1, "process_levels": [true, 500, {"a": 1}, "X"]}`))
	require.NoError(t, err)
	assert.True(t, raw.HasProcessLevels)
	assert.Equal(t, []scenario.ProcessLevel{scenario.NumericLevel(500), scenario.TextLevel("X")}, raw.ProcessLevels)
	assert.Equal(t, 2, logs.Len())

	raw, err = f.ParseScenario([]byte(`{"id": 2, "process_levels": true}`))
	require.NoError(t, err)
	assert.False(t, raw.HasProcessLevels)
	assert.Empty(t, raw.ProcessLevels)

	raw, err = f.ParseScenario([]byte(`{"id": 3, "process_level": {"code": 500}}`))
	require.NoError(t, err)
	assert.Nil(t, raw.ProcessLevel)
}

func TestParseCollection_MalformedRecordsDegrade(t *testing.T) {
	n := scenario.NewNormalizer(scenario.DefaultTables())
	f := factory.NewScenarioFactory()

	c, err := f.ParseCollection([]byte(`{"scenarios": [
		{"id": 2, "name": "Two", "updates": "oops", "process_level": false},
		{"id": 1, "name": "One"}
	]}`), n)
	require.NoError(t, err)
	require.Len(t, c.Scenarios, 2)
	assert.Equal(t, 2, c.Scenarios[1].ID)
	assert.Empty(t, c.Scenarios[1].ProcessLevels)
	assert.Empty(t, c.Scenarios[1].Updates.Fields)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		kind  scenario.ValueKind
		text  string
	}{
		{`null`, scenario.ValueNull, ""},
		{`0.5`, scenario.ValueNumber, "0.5"},
		{`"Y"`, scenario.ValueString, "Y"},
		{`{"base": "SCHED_HRS", "multiplier": 1.5}`, scenario.ValueBaseMultiplier, `{"base":"SCHED_HRS","multiplier":1.5}`},
		{`{"base": "SCHED_HRS"}`, scenario.ValueOther, `{"base":"SCHED_HRS"}`},
		{`[1, 2]`, scenario.ValueOther, `[1,2]`},
		{`true`, scenario.ValueOther, `true`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := factory.ParseValue(json.RawMessage(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind)
			assert.Equal(t, tt.text, v.Text)
		})
	}
}

func TestParseBatch(t *testing.T) {
	f := factory.NewScenarioFactory()

	array, err := f.ParseBatch([]byte(`[{"id": 1}, {"id": 2}]`))
	require.NoError(t, err)
	assert.Len(t, array, 2)

	wrapped, err := f.ParseBatch([]byte(`{"scenarios": [{"id": 1}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	_, err = f.ParseBatch([]byte(`[{"id": 1}, 5]`))
	assert.ErrorContains(t, err, "position 1")

	_, err = f.ParseBatch([]byte(`not json`))
	assert.Error(t, err)
}

func TestSourceMap(t *testing.T) {
	// GIVEN: A batch repeating id 1
	// WHEN: Keyed by id
	// THEN: The later record wins

	batch := []scenario.RawScenario{
		{ID: scenario.IntPtr(1), Name: scenario.StringPtr("first")},
		{ID: scenario.IntPtr(2)},
		{ID: scenario.IntPtr(1), Name: scenario.StringPtr("second")},
	}
	sources, err := factory.SourceMap(batch)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
	assert.Equal(t, "second", *sources[1].Name)

	_, err = factory.SourceMap([]scenario.RawScenario{{Name: scenario.StringPtr("anon")}})
	var missing *scenario.MissingIDError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, missing.Index)
	assert.Equal(t, "anon", missing.Name)
	assert.True(t, errors.Is(err, scenario.ErrMissingID))
}

func TestParseCollection(t *testing.T) {
	// GIVEN: A collection file mixing a legacy and a canonical record
	// WHEN: Parsed with a normalizer
	// THEN: Every scenario comes back canonical and sorted by id

	n := scenario.NewNormalizer(scenario.DefaultTables())
	f := factory.NewScenarioFactory()

	c, err := f.ParseCollection([]byte(`{
		"schema_version": "2.0",
		"metadata": {"owner": "payroll"},
		"scenarios": [
			{"id": 9, "name": "Legacy", "updates": {"STD_HRS": "SCHED_HRS"}},
			{"id": 2, "name": "Canonical", "process_levels": [], "updates": {"order": [], "fields": {}}}
		]
	}`), n)
	require.NoError(t, err)

	assert.Equal(t, "2.0", c.SchemaVersion)
	assert.JSONEq(t, `{"owner": "payroll"}`, string(c.Metadata))
	require.Len(t, c.Scenarios, 2)
	assert.Equal(t, 2, c.Scenarios[0].ID)
	assert.Equal(t, 9, c.Scenarios[1].ID)
	assert.Equal(t, []string{"STD_HOURS"}, c.Scenarios[1].Updates.Order)
	assert.Equal(t, "variables.ScheduledHours", c.Scenarios[1].Updates.Fields["STD_HOURS"].Source)
}

func TestParseCollection_Invalid(t *testing.T) {
	n := scenario.NewNormalizer(scenario.DefaultTables())
	f := factory.NewScenarioFactory()

	_, err := f.ParseCollection([]byte(`{"scenarios": [{"id": 1}, {"id": 1}]}`), n)
	assert.True(t, errors.Is(err, scenario.ErrInvalidCollection))
	assert.True(t, errors.Is(err, scenario.ErrDuplicateID))

	_, err = f.ParseCollection([]byte(`{"scenarios": [{"name": "no id"}]}`), n)
	assert.True(t, errors.Is(err, scenario.ErrMissingID))

	_, err = f.ParseCollection([]byte(`[]`), n)
	assert.True(t, errors.Is(err, scenario.ErrInvalidCollection))

	empty, err := f.ParseCollection([]byte(`{}`), n)
	require.NoError(t, err)
	assert.Empty(t, empty.Scenarios)
}
