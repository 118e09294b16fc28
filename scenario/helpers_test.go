package scenario_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/scenario-engine/scenario"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var scenarioCmp = []cmp.Option{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b scenario.ProcessLevel) bool {
		return a.String() == b.String() && a.IsText() == b.IsText()
	}),
	cmpopts.EquateEmpty(),
}

func newNormalizer() *scenario.Normalizer {
	return scenario.NewNormalizer(scenario.DefaultTables())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func constant(s string) scenario.Operand {
	return scenario.ConstantOperand(dec(s))
}

func baseMultiplier(t *testing.T, base, multiplier string) scenario.RawValue {
	t.Helper()
	v, err := scenario.BaseMultiplierValue(base, multiplier)
	require.NoError(t, err)
	return v
}

func field(name string, v scenario.RawValue) scenario.RawField {
	return scenario.RawField{Name: name, Value: v}
}

// legacyScenario is a flat-updates record the way the spreadsheet tooling
// used to write them.
func legacyScenario(t *testing.T, id int, name string) scenario.RawScenario {
	t.Helper()
	level := scenario.NumericLevel(500)
	return scenario.RawScenario{
		ID:           scenario.IntPtr(id),
		Name:         scenario.StringPtr(name),
		Description:  scenario.StringPtr("Employee on intermittent leave"),
		ReasonCode:   scenario.StringPtr("ILOA"),
		ProcessLevel: &level,
		Conditions: scenario.RawConditions{
			Form:      scenario.ConditionsMapping,
			Required:  []string{"C6", "C14"},
			Forbidden: []string{"C21"},
		},
		Updates: scenario.FlatUpdates(
			field("STD_HRS", baseMultiplier(t, "SCHED_HRS", "0.6")),
			field("PTO_HRS", scenario.StringValue("PTO_USE_HRS")),
			field("ENTRY_DATE", scenario.StringValue("CURRENT_DATE")),
			field("AUTH_BY", scenario.NullValue()),
			field("MANUAL_CHECK", scenario.StringValue("Y")),
		),
	}
}

func canonicalScenario(t *testing.T, id int, name string) scenario.Scenario {
	t.Helper()
	s, err := newNormalizer().Normalize(legacyScenario(t, id, name), nil)
	require.NoError(t, err)
	return s
}

func collectionOf(scenarios ...scenario.Scenario) scenario.Collection {
	return scenario.Collection{Scenarios: scenarios}
}
