/*
errors.go - Error types for the scenario engine

PURPOSE:
  All error types in one place. Only a missing id is a hard failure during
  normalization; every other anomaly degrades to a best-effort scenario.

ERROR CATEGORIES:
  1. Identity errors - missing or duplicate ids
  2. Collection errors - malformed documents, schema violations
  3. Store errors - missing collection or scenario

USAGE:
    if errors.Is(err, scenario.ErrMissingID) {
        // reject the batch
    }

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingID is returned when a new scenario has no id. The engine
	// never synthesizes one.
	ErrMissingID = errors.New("scenario id is required")

	// ErrDuplicateID is returned when a collection holds the same id twice.
	ErrDuplicateID = errors.New("duplicate scenario id")

	// ErrInvalidCollection is returned when a document cannot be read as a
	// scenario collection.
	ErrInvalidCollection = errors.New("invalid scenario collection")

	// ErrSchemaViolation is returned when a collection fails validation.
	ErrSchemaViolation = errors.New("scenario schema violation")

	// ErrCollectionNotFound is returned when no collection has been stored.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrScenarioNotFound is returned when a referenced scenario doesn't exist.
	ErrScenarioNotFound = errors.New("scenario not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingIDError identifies the record that had no id.
type MissingIDError struct {
	Index int    // position in the input batch, -1 when unknown
	Name  string // name of the record, if it had one
}

func (e *MissingIDError) Error() string {
	switch {
	case e.Name != "" && e.Index >= 0:
		return fmt.Sprintf("scenario %q at position %d has no id", e.Name, e.Index)
	case e.Index >= 0:
		return fmt.Sprintf("scenario at position %d has no id", e.Index)
	case e.Name != "":
		return fmt.Sprintf("scenario %q has no id", e.Name)
	}
	return ErrMissingID.Error()
}

func (e *MissingIDError) Unwrap() error { return ErrMissingID }

// DuplicateIDError names the repeated id.
type DuplicateIDError struct {
	ID int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("scenario id %d appears more than once", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// Violation is one problem found while validating a collection.
type Violation struct {
	ScenarioID int    // 0 for collection-level problems
	Path       string // JSON pointer-ish location
	Message    string
}

func (v Violation) String() string {
	if v.ScenarioID != 0 {
		return fmt.Sprintf("scenario %d: %s: %s", v.ScenarioID, v.Path, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// ValidationError collects every violation found in a collection.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("%d violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrSchemaViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingID) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidCollection) ||
		errors.Is(err, ErrSchemaViolation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound) ||
		errors.Is(err, ErrScenarioNotFound)
}
