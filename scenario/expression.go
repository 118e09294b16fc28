/*
expression.go - Expression Parser

GRAMMAR:
  Two shapes, tried in order, first match wins:
    1. OPERAND OP OPERAND        OP is * or /, OPERAND is [\w.]+
    2. ( OPERAND / OPERAND )

  Only the first operator occurrence is read. There is no + or -, no
  chaining and no nesting. Anything else yields no calculation and the
  field keeps its source as an uninterpreted expression.

OPERANDS (shape 1):
  legacy variable token  -> {variable: Canonical}
  numeric literal        -> {constant: n}
  anything else          -> {variable: token}   (unrecognized symbol)

  A "variables." qualifier is stripped first, so canonical sources such as
  "variables.ScheduledHours * 1.5" parse to the bare variable name.

OPERANDS (shape 2):
  Both operands are variables, canonical name substituted when known.
*/
package scenario

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	binaryExpr   = regexp.MustCompile(`([\w.]+)\s*([*/])\s*([\w.]+)`)
	quotientExpr = regexp.MustCompile(`\(\s*([\w.]+)\s*/\s*([\w.]+)\s*\)`)
)

const variablePrefix = "variables."

// ParseCalculation parses expr into a Calculation. It returns nil when expr
// matches neither recognized shape; that is the plain-expression case, not
// an error.
func (n *Normalizer) ParseCalculation(expr string) *Calculation {
	if m := binaryExpr.FindStringSubmatch(expr); m != nil {
		op := OpMultiply
		if m[2] == "/" {
			op = OpDivide
		}
		return &Calculation{
			Operation: op,
			Operands:  [2]Operand{n.operand(m[1]), n.operand(m[3])},
		}
	}

	if m := quotientExpr.FindStringSubmatch(expr); m != nil {
		return &Calculation{
			Operation: OpDivide,
			Operands:  [2]Operand{n.variableOperand(m[1]), n.variableOperand(m[2])},
		}
	}

	return nil
}

func (n *Normalizer) operand(token string) Operand {
	token = unqualify(token)
	if name, ok := n.tables.Variable(token); ok {
		return VariableOperand(name)
	}
	if d, err := decimal.NewFromString(token); err == nil {
		return ConstantOperand(d)
	}
	return VariableOperand(token)
}

func (n *Normalizer) variableOperand(token string) Operand {
	token = unqualify(token)
	if name, ok := n.tables.Variable(token); ok {
		return VariableOperand(name)
	}
	return VariableOperand(token)
}

func unqualify(token string) string {
	if rest, ok := strings.CutPrefix(token, variablePrefix); ok && rest != "" {
		return rest
	}
	return token
}
