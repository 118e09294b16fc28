/*
schema.go - Collection validation

PURPOSE:
  Checks a canonical collection in two passes:
    1. JSON Schema (schema.json, draft 2020-12) for shape and types
    2. Audit for the invariants a schema cannot express:
       - ids unique and ascending
       - updates.order and updates.fields name the same fields
       - variables_required equals what the updates reference
       - logging equals what the updates imply

USAGE:
  v, err := scenario.NewValidator(normalizer)
  if err := v.ValidateJSON(data); err != nil {
      var verr *scenario.ValidationError
      errors.As(err, &verr) // verr.Violations
  }
*/
package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var collectionSchema string

const collectionSchemaURL = "https://scenario-engine.local/schemas/collection.schema.json"

// Validator checks collections against the canonical schema.
type Validator struct {
	schema     *jsonschema.Schema
	normalizer *Normalizer
}

// NewValidator compiles the embedded collection schema.
func NewValidator(n *Normalizer) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(collectionSchemaURL, strings.NewReader(collectionSchema)); err != nil {
		return nil, fmt.Errorf("collection schema load failed: %w", err)
	}
	compiled, err := c.Compile(collectionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("collection schema compile failed: %w", err)
	}
	return &Validator{schema: compiled, normalizer: n}, nil
}

// ValidateJSON validates a serialized collection.
func (v *Validator) ValidateJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}

	if err := v.schema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
		return &ValidationError{Violations: schemaViolations(verr)}
	}

	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if violations := v.Audit(c); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Validate validates an in-memory collection.
func (v *Validator) Validate(c Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	return v.ValidateJSON(data)
}

// Audit checks the invariants that the JSON schema cannot express.
func (v *Validator) Audit(c Collection) []Violation {
	var out []Violation
	seen := make(map[int]bool, len(c.Scenarios))
	for i, s := range c.Scenarios {
		path := fmt.Sprintf("/scenarios/%d", i)
		if seen[s.ID] {
			out = append(out, Violation{ScenarioID: s.ID, Path: path + "/id", Message: "duplicate id"})
		}
		seen[s.ID] = true
		if i > 0 && c.Scenarios[i-1].ID > s.ID {
			out = append(out, Violation{ScenarioID: s.ID, Path: path + "/id", Message: "scenarios are not sorted by id"})
		}
		out = append(out, v.auditScenario(s, path)...)
	}
	return out
}

func (v *Validator) auditScenario(s Scenario, path string) []Violation {
	var out []Violation
	add := func(field, msg string) {
		out = append(out, Violation{ScenarioID: s.ID, Path: path + field, Message: msg})
	}

	orderSet := make(map[string]bool, len(s.Updates.Order))
	for _, name := range s.Updates.Order {
		if orderSet[name] {
			add("/updates/order", fmt.Sprintf("field %q listed twice", name))
		}
		orderSet[name] = true
		if _, ok := s.Updates.Fields[name]; !ok {
			add("/updates/order", fmt.Sprintf("field %q has no descriptor", name))
		}
	}
	for name := range s.Updates.Fields {
		if !orderSet[name] {
			add("/updates/fields", fmt.Sprintf("field %q missing from order", name))
		}
	}

	if want := v.normalizer.RequiredVariables(s.Updates); !slices.Equal(want, nonNil(s.VariablesRequired)) {
		add("/variables_required", fmt.Sprintf("expected %s, found %s", compactJSON(want), compactJSON(nonNil(s.VariablesRequired))))
	}
	if want := v.normalizer.LogTemplatesFor(s.Updates); want != s.Logging {
		add("/logging", "does not match the templates derived from updates")
	}
	return out
}

func schemaViolations(err *jsonschema.ValidationError) []Violation {
	if len(err.Causes) == 0 {
		return []Violation{{Path: err.InstanceLocation, Message: err.Message}}
	}
	var out []Violation
	for _, cause := range err.Causes {
		out = append(out, schemaViolations(cause)...)
	}
	return out
}
