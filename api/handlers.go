/*
handlers.go - HTTP API handlers for the scenario engine

PURPOSE:
  Exposes normalization and merging over REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Scenarios:
    GET    /api/scenarios              Stored collection
    GET    /api/scenarios/{id}         One stored scenario
    GET    /api/fingerprints           Canonical fingerprint per scenario

  Engine:
    POST   /api/normalize              Raw record(s) to canonical scenarios
    POST   /api/merge                  Merge sources into the collection
    POST   /api/append                 Add new scenarios only
    POST   /api/validate               Validate a collection document

  History:
    GET    /api/runs                   Merge/append runs, newest first
    GET    /api/backups                Collection snapshots
    POST   /api/backups/{id}/restore   Restore a snapshot

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Collection persistence and run history
  - Factory: JSON to RawScenario conversion
  - Merger/Validator: The engine

REQUEST FLOW:
  1. Parse HTTP request
  2. Decode raw records (factory)
  3. Call the engine (normalize, merge, append)
  4. Validate before writing
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed JSON, missing or duplicate ids
  - 404: Scenario or backup not found
  - 422: Merged collection fails validation
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/scenario-engine/factory"
	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Factory   *factory.ScenarioFactory
	Merger    *scenario.Merger
	Validator *scenario.Validator

	logger *zap.Logger

	// serializes load-merge-save cycles
	writeMu sync.Mutex
}

// NewHandler creates a handler over the given store and tables.
func NewHandler(store *sqlite.Store, tables scenario.Tables, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := scenario.NewNormalizer(tables)
	v, err := scenario.NewValidator(n)
	if err != nil {
		return nil, err
	}
	return &Handler{
		Store:     store,
		Factory:   factory.NewScenarioFactory(factory.WithLogger(logger)),
		Merger:    scenario.NewMerger(n, scenario.WithLogger(logger)),
		Validator: v,
		logger:    logger,
	}, nil
}

// loadCollection returns the stored collection, or an empty one before the
// first save.
func (h *Handler) loadCollection(ctx context.Context) (scenario.Collection, error) {
	c, err := h.Store.Load(ctx)
	if errors.Is(err, scenario.ErrCollectionNotFound) {
		return scenario.Collection{Scenarios: []scenario.Scenario{}}, nil
	}
	return c, err
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the stored collection.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	c, err := h.loadCollection(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenarios", err)
		return
	}

	writeJSON(w, http.StatusOK, ScenarioListDTO{
		SchemaVersion: c.SchemaVersion,
		Count:         len(c.Scenarios),
		Scenarios:     c.Scenarios,
	})
}

// GetScenario returns one stored scenario.
// GET /api/scenarios/{id}
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scenario id", err)
		return
	}

	s, err := h.Store.GetScenario(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListFingerprints returns the canonical fingerprint of every stored
// scenario.
// GET /api/fingerprints
func (h *Handler) ListFingerprints(w http.ResponseWriter, r *http.Request) {
	fps, err := h.Store.Fingerprints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get fingerprints", err)
		return
	}

	out := make(map[string]string, len(fps))
	for id, fp := range fps {
		out[strconv.Itoa(id)] = fp
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// Normalize converts one raw record, or a batch of them, to canonical
// scenarios without touching the store.
// POST /api/normalize
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	batch, err := h.readBatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	n := h.Merger.Normalizer()
	out := make([]scenario.Scenario, 0, len(batch))
	for i, raw := range batch {
		if raw.ID == nil {
			writeEngineError(w, "Invalid scenario", missingID(i, raw))
			return
		}
		s, err := n.Normalize(raw, nil)
		if err != nil {
			writeEngineError(w, "Invalid scenario", err)
			return
		}
		out = append(out, s)
	}

	writeJSON(w, http.StatusOK, NormalizeResponse{Scenarios: out})
}

// Merge applies a batch of source records to the stored collection.
// POST /api/merge?dry_run=true
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dryRun := queryBool(r, "dry_run")

	batch, err := h.readBatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sources, err := factory.SourceMap(batch)
	if err != nil {
		writeEngineError(w, "Invalid sources", err)
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	plan, err := h.Merger.PlanMerge(ctx, h.Store, sources)
	if err != nil {
		writeEngineError(w, "Merge failed", err)
		return
	}
	if err := h.Validator.Validate(plan.Collection); err != nil {
		writeEngineError(w, "Merged collection is invalid", err)
		return
	}

	if !dryRun {
		if err := plan.Apply(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save scenarios", err)
			return
		}
	}

	rep := plan.Report
	resp := MergeResponse{
		DryRun:   dryRun,
		Sources:  rep.Sources,
		Added:    rep.Count(scenario.ChangeAdded),
		Updated:  rep.Count(scenario.ChangeUpdated),
		Modified: rep.Modified(),
		Skipped:  rep.Skipped,
		Changes:  toChangeDTOs(rep.Changes, true),
	}

	run, err := h.recordRun(ctx, sqlite.RunRecord{
		Kind:     "merge",
		DryRun:   dryRun,
		Sources:  resp.Sources,
		Added:    resp.Added,
		Updated:  resp.Updated,
		Modified: resp.Modified,
		Skipped:  resp.Skipped,
	}, toChangeDTOs(rep.Changes, false))
	if err != nil {
		h.logger.Warn("failed to record merge run", zap.Error(err))
	}
	resp.RunID = run.ID

	h.logger.Info("merge complete",
		zap.Bool("dry_run", dryRun),
		zap.Int("sources", resp.Sources),
		zap.Int("added", resp.Added),
		zap.Int("modified", resp.Modified))
	writeJSON(w, http.StatusOK, resp)
}

// Append adds the batch records whose ids are new to the collection.
// POST /api/append?dry_run=true
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dryRun := queryBool(r, "dry_run")

	batch, err := h.readBatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	plan, err := h.Merger.PlanAppend(ctx, h.Store, batch)
	if err != nil {
		writeEngineError(w, "Append failed", err)
		return
	}
	res := plan.Appended

	if plan.Changed() {
		if err := h.Validator.Validate(plan.Collection); err != nil {
			writeEngineError(w, "Appended collection is invalid", err)
			return
		}
	}
	if !dryRun && plan.Changed() {
		if err := plan.Apply(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save scenarios", err)
			return
		}
	}

	run, err := h.recordRun(ctx, sqlite.RunRecord{
		Kind:    "append",
		DryRun:  dryRun,
		Sources: len(batch),
		Added:   len(res.Added),
		Skipped: res.SkippedCount(),
	}, res.Skipped)
	if err != nil {
		h.logger.Warn("failed to record append run", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, AppendResponse{
		RunID:   run.ID,
		DryRun:  dryRun,
		Added:   res.Added,
		Skipped: res.Skipped,
	})
}

// Validate checks a collection document against the canonical schema.
// POST /api/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	err = h.Validator.ValidateJSON(bytes.TrimPrefix(body, utf8BOM))
	var verr *scenario.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Violations: []ViolationDTO{}})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Violations: toViolationDTOs(verr.Violations)})
	default:
		writeError(w, http.StatusBadRequest, "Invalid collection", err)
	}
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// ListRuns returns recorded runs, newest first.
// GET /api/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListBackups returns stored snapshots, newest first.
// GET /api/backups
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.Store.ListBackups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get backups", err)
		return
	}

	dtos := make([]BackupDTO, 0, len(backups))
	for _, b := range backups {
		dtos = append(dtos, BackupDTO{
			ID:            b.ID,
			CreatedAt:     b.CreatedAt.Format(time.RFC3339),
			ScenarioCount: b.ScenarioCount,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RestoreBackup replaces the collection with a snapshot. The collection
// being replaced is itself snapshotted by the store.
// POST /api/backups/{id}/restore
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	c, err := h.Store.LoadBackup(ctx, id)
	if err != nil {
		writeEngineError(w, "Failed to load backup", err)
		return
	}
	if err := h.Store.Save(ctx, c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restore backup", err)
		return
	}

	h.logger.Info("backup restored", zap.String("backup_id", id), zap.Int("scenarios", len(c.Scenarios)))
	writeJSON(w, http.StatusOK, ScenarioListDTO{
		SchemaVersion: c.SchemaVersion,
		Count:         len(c.Scenarios),
		Scenarios:     c.Scenarios,
	})
}

// ResetDatabase clears the collection and all history.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readBatch decodes a request body holding one raw record, an array of
// them, or {"scenarios": [...]}.
func (h *Handler) readBatch(r *http.Request) ([]scenario.RawScenario, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}

	if body[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, err
		}
		if _, ok := obj["scenarios"]; !ok {
			raw, err := h.Factory.FromJSON(obj)
			if err != nil {
				return nil, err
			}
			return []scenario.RawScenario{raw}, nil
		}
	}
	return h.Factory.ParseBatch(body)
}

func (h *Handler) recordRun(ctx context.Context, run sqlite.RunRecord, detail any) (sqlite.RunRecord, error) {
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return sqlite.RunRecord{}, fmt.Errorf("failed to encode run report: %w", err)
		}
		run.Report = data
	}
	return h.Store.RecordRun(ctx, run)
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func missingID(index int, raw scenario.RawScenario) error {
	e := &scenario.MissingIDError{Index: index}
	if raw.Name != nil {
		e.Name = *raw.Name
	}
	return e
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors to a status code.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	var verr *scenario.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Details: toViolationDTOs(verr.Violations),
		})
	case scenario.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case scenario.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
