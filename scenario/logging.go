package scenario

// loggedField is the only field the log template heuristic understands.
const loggedField = "STD_HOURS"

// LogTemplatesFor derives the feeder's log templates from u. Only a
// STD_HOURS field whose calculation multiplies a known variable by a
// constant produces messages:
//
//	add:    STD_HOURS: {variables.ScheduledHours * 1.5}
//	update: STD_HOURS from {current.STD_HOURS} to {variables.ScheduledHours * 1.5}
//
// Every other scenario gets empty templates.
func (n *Normalizer) LogTemplatesFor(u Updates) LogTemplates {
	f, ok := u.Fields[loggedField]
	if !ok || f.Calculation == nil || f.Calculation.Operation != OpMultiply {
		return LogTemplates{}
	}
	first, second := f.Calculation.Operands[0], f.Calculation.Operands[1]
	if first.IsConstant() || !n.tables.IsKnownVariable(first.Variable) || !second.IsConstant() {
		return LogTemplates{}
	}

	expr := n.writtenExpression(f)
	return LogTemplates{
		AddMessage:    loggedField + ": {" + expr + "}",
		UpdateMessage: loggedField + " from {current." + loggedField + "} to {" + expr + "}",
	}
}

// writtenExpression renders f's calculation with operands spelled as in its
// source, so "variables.ScheduledHours * 1.50" keeps its trailing zero. It
// falls back to the calculation's own rendering when the source does not
// parse to the same calculation.
func (n *Normalizer) writtenExpression(f FieldDescriptor) string {
	expr := f.Calculation.Expression()
	m := binaryExpr.FindStringSubmatch(f.Source)
	if m == nil {
		return expr
	}
	parsed := n.ParseCalculation(f.Source)
	if parsed == nil || !parsed.Equal(*f.Calculation) {
		return expr
	}
	return f.Calculation.Operands[0].String() + " " + m[2] + " " + unqualify(m[3])
}
