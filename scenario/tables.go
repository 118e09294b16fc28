package scenario

import (
	"maps"
	"slices"
)

// legacyScheduledHours is the spreadsheet token for scheduled hours. Field
// values spelled exactly like this, or {base: SCHED_HRS, multiplier}, get
// dedicated classification rules.
const legacyScheduledHours = "SCHED_HRS"

var defaultFieldNames = map[string]string{
	"STD_HRS":   "STD_HOURS",
	"SCHED_HRS": "ScheduledHours",
}

var defaultVariableNames = map[string]string{
	"SCHED_HRS":               "ScheduledHours",
	"STD_OR_NOT":              "StdOrNot",
	"PAY_RATE":                "PayRate",
	"PTO_USE_HRS":             "PtoUseHrs",
	"PTO_USABLE":              "PtoUsable",
	"BASIC_SICK_AVAIL_CALC":   "BasicSickAvailCalc",
	"PTO_SUPP_HRS":            "PtoSuppHrs",
	"PTO_BASIC_SICK_STD_CTPL": "PtoBasicSickStdCtpl",
	"BASIC_SICK_STD_CTPL":     "BasicSickStdCtpl",
	"PTO_BASIC_SICK_STD":      "PtoBasicSickStd",
}

var defaultStringVariables = []string{"PTO_USABLE", "BASIC_SICK_AVAIL_CALC"}

var defaultEnumerants = []string{"Y", "ESL"}

// Tables is the immutable lookup configuration used by the normalizer:
// legacy→canonical field names, legacy→canonical variable names, the legacy
// variables whose fields are string-typed, and the plain string enumerants.
// Build with NewTables or DefaultTables; the zero value knows no names.
type Tables struct {
	fieldNames      map[string]string
	variableNames   map[string]string
	canonical       map[string]bool
	stringVariables map[string]bool
	enumerants      map[string]bool
}

// DefaultTables returns the built-in tables.
func DefaultTables() Tables {
	return NewTables(defaultFieldNames, defaultVariableNames, defaultStringVariables, defaultEnumerants)
}

// NewTables copies the given mappings into a Tables value.
func NewTables(fieldNames, variableNames map[string]string, stringVariables, enumerants []string) Tables {
	t := Tables{
		fieldNames:      maps.Clone(fieldNames),
		variableNames:   maps.Clone(variableNames),
		canonical:       make(map[string]bool, len(variableNames)),
		stringVariables: make(map[string]bool, len(stringVariables)),
		enumerants:      make(map[string]bool, len(enumerants)),
	}
	for _, v := range variableNames {
		t.canonical[v] = true
	}
	for _, v := range stringVariables {
		t.stringVariables[v] = true
	}
	for _, v := range enumerants {
		t.enumerants[v] = true
	}
	return t
}

// FieldName returns the canonical name for a raw field name.
func (t Tables) FieldName(raw string) string {
	if name, ok := t.fieldNames[raw]; ok {
		return name
	}
	return raw
}

// Variable returns the canonical name of a legacy variable token.
func (t Tables) Variable(legacy string) (string, bool) {
	name, ok := t.variableNames[legacy]
	return name, ok
}

// IsKnownVariable reports whether name is a canonical variable name.
func (t Tables) IsKnownVariable(name string) bool { return t.canonical[name] }

// IsStringVariable reports whether a legacy token makes its field string-typed.
func (t Tables) IsStringVariable(legacy string) bool { return t.stringVariables[legacy] }

// IsEnumerant reports whether s is a plain string value such as "Y".
func (t Tables) IsEnumerant(s string) bool { return t.enumerants[s] }

// FieldNames returns a copy of the field-name table.
func (t Tables) FieldNames() map[string]string { return maps.Clone(t.fieldNames) }

// VariableNames returns a copy of the variable-name table.
func (t Tables) VariableNames() map[string]string { return maps.Clone(t.variableNames) }

// StringVariables returns the string-typed legacy variables, sorted.
func (t Tables) StringVariables() []string {
	return slices.Sorted(maps.Keys(t.stringVariables))
}

// Enumerants returns the plain enumerants, sorted.
func (t Tables) Enumerants() []string {
	return slices.Sorted(maps.Keys(t.enumerants))
}

// scheduledHours returns the canonical scheduled-hours variable.
func (t Tables) scheduledHours() string {
	if name, ok := t.variableNames[legacyScheduledHours]; ok {
		return name
	}
	return "ScheduledHours"
}
