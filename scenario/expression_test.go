package scenario_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/warp/scenario-engine/scenario"
)

// =============================================================================
// EXPRESSION PARSER TESTS
// =============================================================================

func TestParseCalculation(t *testing.T) {
	n := newNormalizer()

	tests := []struct {
		name string
		expr string
		want *scenario.Calculation
	}{
		{
			name: "legacy variable times constant",
			expr: "SCHED_HRS * 1.5",
			want: &scenario.Calculation{
				Operation: scenario.OpMultiply,
				Operands:  [2]scenario.Operand{scenario.VariableOperand("ScheduledHours"), constant("1.5")},
			},
		},
		{
			name: "qualified canonical variable",
			expr: "variables.ScheduledHours * 1.5",
			want: &scenario.Calculation{
				Operation: scenario.OpMultiply,
				Operands:  [2]scenario.Operand{scenario.VariableOperand("ScheduledHours"), constant("1.5")},
			},
		},
		{
			name: "division keeps numerator first",
			expr: "PTO_USE_HRS/SCHED_HRS",
			want: &scenario.Calculation{
				Operation: scenario.OpDivide,
				Operands: [2]scenario.Operand{
					scenario.VariableOperand("PtoUseHrs"),
					scenario.VariableOperand("ScheduledHours"),
				},
			},
		},
		{
			name: "parenthesized quotient with a constant",
			expr: "(SCHED_HRS / 40)",
			want: &scenario.Calculation{
				Operation: scenario.OpDivide,
				Operands:  [2]scenario.Operand{scenario.VariableOperand("ScheduledHours"), constant("40")},
			},
		},
		{
			name: "unknown symbol becomes a variable",
			expr: "HOURS_X * 2",
			want: &scenario.Calculation{
				Operation: scenario.OpMultiply,
				Operands:  [2]scenario.Operand{scenario.VariableOperand("HOURS_X"), constant("2")},
			},
		},
		{
			name: "only the first operator is read",
			expr: "PAY_RATE * 2 * 3",
			want: &scenario.Calculation{
				Operation: scenario.OpMultiply,
				Operands:  [2]scenario.Operand{scenario.VariableOperand("PayRate"), constant("2")},
			},
		},
		{name: "addition is not recognized", expr: "SCHED_HRS + 1"},
		{name: "bare token", expr: "SCHED_HRS"},
		{name: "empty", expr: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.ParseCalculation(tc.expr)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			if diff := cmp.Diff(tc.want, got, scenarioCmp...); diff != "" {
				t.Errorf("calculation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCalculation_Expression(t *testing.T) {
	c := scenario.Calculation{
		Operation: scenario.OpDivide,
		Operands:  [2]scenario.Operand{scenario.VariableOperand("PtoUseHrs"), constant("40")},
	}
	assert.Equal(t, "variables.PtoUseHrs / 40", c.Expression())
}

func TestOperand_JSON(t *testing.T) {
	// GIVEN: A constant and a variable operand
	// WHEN: Marshaled
	// THEN: Exactly one key each, constant written as a bare number

	b, err := constant("0.6").MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"constant":0.6}`, string(b))

	b, err = scenario.VariableOperand("ScheduledHours").MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"variable":"ScheduledHours"}`, string(b))

	var op scenario.Operand
	assert.Error(t, op.UnmarshalJSON([]byte(`{"variable":"A","constant":1}`)))
	assert.Error(t, op.UnmarshalJSON([]byte(`{}`)))
}
