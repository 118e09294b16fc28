/*
Package sqlite provides a SQLite-backed CollectionStore.

PURPOSE:
  Keeps the canonical scenario collection in SQLite, one row per scenario,
  together with what the file-based tooling keeps beside the document:
  backups taken before every save and a history of merge/append runs.

INTERFACES IMPLEMENTED:
  scenario.CollectionStore: Load / Save of the whole collection

KEY TABLES:
  scenarios:        One canonical scenario per row (JSON body + fingerprint)
  collection_meta:  schema_version, metadata, initialized flag
  backups:          Full collection snapshots taken before each save
  runs:             Merge/append/extract run history with counts

SAVE SEMANTICS:
  Save runs in one transaction:
  1. snapshot the current collection into backups (if one exists)
  2. upsert every scenario; rows whose fingerprint is unchanged are
     left untouched so updated_at tracks real edits
  3. delete rows for ids no longer in the collection
  4. write collection metadata

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, same as the file store's callers
  expect from a single writer.

USAGE:
  store, err := sqlite.New("./data/scenarios.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - scenario/store.go: Interface definition
  - store/file: JSON document store
  - scenario/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/scenario-engine/scenario"
)

// Store implements scenario.CollectionStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ scenario.CollectionStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Canonical scenarios
	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		body_json TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Document-level attributes
	CREATE TABLE IF NOT EXISTS collection_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Snapshots taken before each save
	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		scenario_count INTEGER NOT NULL,
		body_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backups_created_at
		ON backups(created_at);

	-- Merge / append / extract history
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		sources INTEGER NOT NULL DEFAULT 0,
		added INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		report_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at
		ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// COLLECTION STORE
// =============================================================================

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	metaInitialized   = "initialized"
	metaSchemaVersion = "schema_version"
	metaMetadata      = "metadata"
)

// Load returns the stored collection sorted by id.
func (s *Store) Load(ctx context.Context) (scenario.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) load(ctx context.Context, db querier) (scenario.Collection, error) {
	meta, err := s.readMeta(ctx, db)
	if err != nil {
		return scenario.Collection{}, err
	}
	if meta[metaInitialized] == "" {
		return scenario.Collection{}, scenario.ErrCollectionNotFound
	}

	c := scenario.Collection{
		SchemaVersion: meta[metaSchemaVersion],
		Scenarios:     []scenario.Scenario{},
	}
	if m := meta[metaMetadata]; m != "" {
		c.Metadata = json.RawMessage(m)
	}

	rows, err := db.QueryContext(ctx, "SELECT body_json FROM scenarios ORDER BY id ASC")
	if err != nil {
		return scenario.Collection{}, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return scenario.Collection{}, err
		}
		var sc scenario.Scenario
		if err := json.Unmarshal([]byte(body), &sc); err != nil {
			return scenario.Collection{}, fmt.Errorf("failed to decode scenario: %w", err)
		}
		c.Scenarios = append(c.Scenarios, sc)
	}
	return c, rows.Err()
}

func (s *Store) readMeta(ctx context.Context, db querier) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM collection_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query collection meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces the stored collection, snapshotting the previous one.
func (s *Store) Save(ctx context.Context, c scenario.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.snapshot(ctx, sqlTx); err != nil {
		return err
	}

	now := s.now().UTC().Format(time.RFC3339)
	keep := make(map[int]bool, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		body, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("failed to encode scenario %d: %w", sc.ID, err)
		}
		fp, err := scenario.Fingerprint(sc)
		if err != nil {
			return err
		}
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO scenarios (id, name, body_json, fingerprint, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				body_json = excluded.body_json,
				fingerprint = excluded.fingerprint,
				updated_at = excluded.updated_at
			WHERE scenarios.fingerprint != excluded.fingerprint
		`, sc.ID, sc.Name, string(body), fp, now)
		if err != nil {
			return fmt.Errorf("failed to save scenario %d: %w", sc.ID, err)
		}
		keep[sc.ID] = true
	}

	if err := deleteMissing(ctx, sqlTx, keep); err != nil {
		return err
	}

	meta := map[string]string{
		metaInitialized:   now,
		metaSchemaVersion: c.SchemaVersion,
		metaMetadata:      string(c.Metadata),
	}
	for k, v := range meta {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT OR REPLACE INTO collection_meta (key, value) VALUES (?, ?)", k, v)
		if err != nil {
			return fmt.Errorf("failed to save collection meta: %w", err)
		}
	}

	return sqlTx.Commit()
}

func (s *Store) snapshot(ctx context.Context, tx *sql.Tx) error {
	current, err := s.load(ctx, tx)
	if errors.Is(err, scenario.ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	body, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO backups (id, created_at, scenario_count, body_json) VALUES (?, ?, ?, ?)",
		uuid.New().String(), s.now().UTC().Format(timeLayout), len(current.Scenarios), string(body))
	if err != nil {
		return fmt.Errorf("failed to save backup: %w", err)
	}
	return nil
}

func deleteMissing(ctx context.Context, tx *sql.Tx, keep map[int]bool) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM scenarios")
	if err != nil {
		return fmt.Errorf("failed to query scenario ids: %w", err)
	}
	var stale []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM scenarios WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete scenario %d: %w", id, err)
		}
	}
	return nil
}

// GetScenario returns one scenario by id.
func (s *Store) GetScenario(ctx context.Context, id int) (scenario.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body_json FROM scenarios WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return scenario.Scenario{}, scenario.ErrScenarioNotFound
	}
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("failed to get scenario: %w", err)
	}

	var sc scenario.Scenario
	if err := json.Unmarshal([]byte(body), &sc); err != nil {
		return scenario.Scenario{}, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return sc, nil
}

// Fingerprints returns the stored fingerprint of every scenario by id.
func (s *Store) Fingerprints(ctx context.Context) (map[int]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, fingerprint FROM scenarios")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var id int
		var fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// =============================================================================
// BACKUPS
// =============================================================================

// BackupRecord describes one stored snapshot.
type BackupRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ScenarioCount int       `json:"scenario_count"`
}

// ListBackups returns snapshots, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, scenario_count FROM backups ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var backups []BackupRecord
	for rows.Next() {
		var b BackupRecord
		var createdAt string
		if err := rows.Scan(&b.ID, &createdAt, &b.ScenarioCount); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// LoadBackup returns the collection stored in one snapshot.
func (s *Store) LoadBackup(ctx context.Context, id string) (scenario.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body_json FROM backups WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return scenario.Collection{}, scenario.ErrCollectionNotFound
	}
	if err != nil {
		return scenario.Collection{}, fmt.Errorf("failed to get backup: %w", err)
	}

	var c scenario.Collection
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return scenario.Collection{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	return c, nil
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// RunRecord is one merge, append or extract run.
type RunRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	StartedAt time.Time       `json:"started_at"`
	DryRun    bool            `json:"dry_run"`
	Sources   int             `json:"sources"`
	Added     int             `json:"added"`
	Updated   int             `json:"updated"`
	Modified  int             `json:"modified"`
	Skipped   int             `json:"skipped"`
	Report    json.RawMessage `json:"report,omitempty"`
}

// RecordRun stores a run. ID and StartedAt are filled in when empty; the
// stored record is returned.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}

	var report sql.NullString
	if len(run.Report) > 0 {
		report = sql.NullString{String: string(run.Report), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, started_at, dry_run, sources, added, updated, modified, skipped, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.StartedAt.Format(timeLayout), run.DryRun,
		run.Sources, run.Added, run.Updated, run.Modified, run.Skipped, report)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, started_at, dry_run, sources, added, updated, modified, skipped, report_json
		FROM runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		var startedAt string
		var report sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &startedAt, &r.DryRun,
			&r.Sources, &r.Added, &r.Updated, &r.Modified, &r.Skipped, &report); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if report.Valid {
			r.Report = json.RawMessage(report.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITY
// =============================================================================

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"scenarios", "collection_meta", "backups", "runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
