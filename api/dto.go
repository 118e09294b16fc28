/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Scenarios themselves
  go out in their canonical collection shape; the types here wrap them
  with run counts, diffs and validation results.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - scenario/merge.go: MergeReport, AppendResult
*/
package api

import (
	"time"

	"github.com/warp/scenario-engine/report"
	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/store/sqlite"
)

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioListDTO is the response of GET /api/scenarios.
type ScenarioListDTO struct {
	SchemaVersion string              `json:"schema_version,omitempty"`
	Count         int                 `json:"count"`
	Scenarios     []scenario.Scenario `json:"scenarios"`
}

// NormalizeResponse carries canonical scenarios built from raw records.
type NormalizeResponse struct {
	Scenarios []scenario.Scenario `json:"scenarios"`
}

// =============================================================================
// MERGE / APPEND TYPES
// =============================================================================

// ChangeDTO is one scenario touched by a merge.
type ChangeDTO struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Changes []string `json:"changes"`
	Diff    []string `json:"diff,omitempty"`
}

// MergeResponse is the response of POST /api/merge.
type MergeResponse struct {
	RunID    string      `json:"run_id"`
	DryRun   bool        `json:"dry_run"`
	Sources  int         `json:"sources"`
	Added    int         `json:"added"`
	Updated  int         `json:"updated"`
	Modified int         `json:"modified"`
	Skipped  int         `json:"skipped"`
	Changes  []ChangeDTO `json:"changes"`
}

// AppendResponse is the response of POST /api/append.
type AppendResponse struct {
	RunID   string              `json:"run_id"`
	DryRun  bool                `json:"dry_run"`
	Added   []scenario.Scenario `json:"added"`
	Skipped []int               `json:"skipped"`
}

// =============================================================================
// VALIDATION / HISTORY TYPES
// =============================================================================

// ViolationDTO is one validation problem.
type ViolationDTO struct {
	ScenarioID int    `json:"scenario_id,omitempty"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

// ValidateResponse is the response of POST /api/validate.
type ValidateResponse struct {
	Valid      bool           `json:"valid"`
	Violations []ViolationDTO `json:"violations"`
}

// RunDTO is one recorded merge or append run.
type RunDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	StartedAt string `json:"started_at"`
	DryRun    bool   `json:"dry_run"`
	Sources   int    `json:"sources"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Modified  int    `json:"modified"`
	Skipped   int    `json:"skipped"`
}

// BackupDTO is one stored collection snapshot.
type BackupDTO struct {
	ID            string `json:"id"`
	CreatedAt     string `json:"created_at"`
	ScenarioCount int    `json:"scenario_count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toChangeDTOs(changes []scenario.ScenarioChange, withDiff bool) []ChangeDTO {
	dtos := make([]ChangeDTO, 0, len(changes))
	for _, c := range changes {
		dto := ChangeDTO{
			ID:      c.ID,
			Name:    c.Name,
			Kind:    string(c.Kind),
			Changes: c.Changes,
		}
		if dto.Changes == nil {
			dto.Changes = []string{}
		}
		if withDiff {
			for _, line := range report.ScenarioDiff(c.Before, c.After) {
				dto.Diff = append(dto.Diff, line.String())
			}
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func toViolationDTOs(violations []scenario.Violation) []ViolationDTO {
	dtos := make([]ViolationDTO, 0, len(violations))
	for _, v := range violations {
		dtos = append(dtos, ViolationDTO{ScenarioID: v.ScenarioID, Path: v.Path, Message: v.Message})
	}
	return dtos
}

func toRunDTO(run sqlite.RunRecord) RunDTO {
	return RunDTO{
		ID:        run.ID,
		Kind:      run.Kind,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		DryRun:    run.DryRun,
		Sources:   run.Sources,
		Added:     run.Added,
		Updated:   run.Updated,
		Modified:  run.Modified,
		Skipped:   run.Skipped,
	}
}
