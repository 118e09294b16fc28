/*
field.go - Field Normalizer

CLASSIFICATION ORDER (first match wins):
  1. null, or the string "null"        -> string, allow_null, "null"
  2. number                            -> double, number as written
  3. "CURRENT_DATE"                    -> date
  4. "SCHED_HRS"                       -> double, variables.ScheduledHours
  5. {base: SCHED_HRS, multiplier: m}  -> double, variables.ScheduledHours * m
                                          with a multiply calculation
  6. plain enumerant ("Y", "ESL")      -> string, as is
  7. any other string                  -> expression: legacy tokens become
                                          variables.<Canonical>, calculation
                                          parsed from the original text,
                                          string-typed only when the first
                                          recognized token is a string variable
  8. anything else                     -> string, compact JSON text

  Structured {order, fields} updates never reach this cascade; the
  Normalizer passes them through before calling NormalizeField.
*/
package scenario

import (
	"regexp"
	"strings"
)

const (
	currentDate = "CURRENT_DATE"
	nullSource  = "null"
)

var identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// NormalizeField classifies one raw field value. It also returns the
// canonical variables substituted into the source, in first-seen order.
func (n *Normalizer) NormalizeField(v RawValue) (FieldDescriptor, []string) {
	switch v.Kind {
	case ValueNull:
		return nullField(), nil

	case ValueNumber:
		return FieldDescriptor{Type: TypeDouble, Source: v.Text}, nil

	case ValueString:
		return n.normalizeString(v.Text)

	case ValueBaseMultiplier:
		if v.Base == legacyScheduledHours {
			sched := n.tables.scheduledHours()
			return FieldDescriptor{
				Type:   TypeDouble,
				Source: variablePrefix + sched + " * " + v.MultiplierText,
				Calculation: &Calculation{
					Operation: OpMultiply,
					Operands:  [2]Operand{VariableOperand(sched), ConstantOperand(v.Multiplier)},
				},
			}, []string{sched}
		}
	}

	return FieldDescriptor{Type: TypeString, Source: v.Text}, nil
}

func (n *Normalizer) normalizeString(s string) (FieldDescriptor, []string) {
	switch {
	case s == nullSource:
		return nullField(), nil
	case s == currentDate:
		return FieldDescriptor{Type: TypeDate, Source: currentDate}, nil
	case s == legacyScheduledHours:
		sched := n.tables.scheduledHours()
		return FieldDescriptor{Type: TypeDouble, Source: variablePrefix + sched}, []string{sched}
	case n.tables.IsEnumerant(s):
		return FieldDescriptor{Type: TypeString, Source: s}, nil
	}

	source, vars, first := n.substituteVariables(s)
	f := FieldDescriptor{
		Type:        TypeDouble,
		Source:      source,
		Calculation: n.ParseCalculation(s),
	}
	if first != "" && n.tables.IsStringVariable(first) {
		f.Type = TypeString
	}
	return f, vars
}

// substituteVariables replaces each known legacy token in s with its
// variables.<Canonical> form. Tokens already qualified (preceded by a dot)
// are left alone. It returns the rewritten source, the canonical names
// substituted, and the first legacy token recognized.
func (n *Normalizer) substituteVariables(s string) (string, []string, string) {
	var (
		b     strings.Builder
		vars  []string
		first string
		last  int
	)
	for _, loc := range identifier.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && (s[start-1] == '.' || isWordByte(s[start-1])) {
			continue
		}
		token := s[start:end]
		name, ok := n.tables.Variable(token)
		if !ok {
			continue
		}
		if first == "" {
			first = token
		}
		vars = append(vars, name)
		b.WriteString(s[last:start])
		b.WriteString(variablePrefix + name)
		last = end
	}
	b.WriteString(s[last:])
	return b.String(), uniqueStrings(vars), first
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func nullField() FieldDescriptor {
	return FieldDescriptor{Type: TypeString, Source: nullSource, AllowNull: true}
}
