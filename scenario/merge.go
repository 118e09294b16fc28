/*
merge.go - Scenario Merger

PURPOSE:
  Reconciles source scenarios into an existing canonical collection.

MERGE (update tooling):
  existing id in sources   -> normalized from the source, existing record
                              used only for attributes the source omits
  existing id not in src   -> passed through unchanged
  source id not existing   -> inserted as a brand-new scenario
  The result is sorted ascending by id. The caller's collection is never
  modified; every scenario in the result is a fresh value.

APPEND (append tooling):
  Strictly additive. A batch record whose id already exists in the target,
  or repeats an earlier record of the same batch, is skipped with a
  warning and counted. It never overwrites.

SEE ALSO:
  - normalize.go: Per-scenario normalization
  - diff.go: Change summaries in the merge report
*/
package scenario

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Merger merges source scenarios into canonical collections.
type Merger struct {
	normalizer *Normalizer
	logger     *zap.Logger
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithLogger sets the logger used for skip warnings and merge decisions.
func WithLogger(l *zap.Logger) MergerOption {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMerger creates a merger around a normalizer.
func NewMerger(n *Normalizer, opts ...MergerOption) *Merger {
	m := &Merger{normalizer: n, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Normalizer returns the normalizer the merger uses.
func (m *Merger) Normalizer() *Normalizer { return m.normalizer }

// =============================================================================
// MERGE REPORT
// =============================================================================

// ChangeKind tells what a merge did to one scenario.
type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeAdded   ChangeKind = "added"
)

// ScenarioChange describes one scenario touched by a merge.
type ScenarioChange struct {
	ID      int        `json:"id"`
	Name    string     `json:"name"`
	Kind    ChangeKind `json:"kind"`
	Before  *Scenario  `json:"before,omitempty"`
	After   Scenario   `json:"after"`
	Changes []string   `json:"changes"`
}

// HasChanges reports whether the scenario differs from what was there.
func (c ScenarioChange) HasChanges() bool { return len(c.Changes) > 0 }

// MergeReport summarizes a merge.
type MergeReport struct {
	Sources int              `json:"sources"`
	Skipped int              `json:"skipped"` // existing scenarios with no source
	Changes []ScenarioChange `json:"changes"`
}

// Count returns how many scenarios were touched with the given kind.
func (r MergeReport) Count(kind ChangeKind) int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Modified returns how many touched scenarios actually changed.
func (r MergeReport) Modified() int {
	n := 0
	for _, c := range r.Changes {
		if c.HasChanges() {
			n++
		}
	}
	return n
}

// =============================================================================
// MERGE
// =============================================================================

// Merge applies sources, keyed by scenario id, to existing. The key is the
// authoritative id of each source record.
func (m *Merger) Merge(existing Collection, sources map[int]RawScenario) (Collection, MergeReport, error) {
	report := MergeReport{Sources: len(sources)}
	out := Collection{
		SchemaVersion: existing.SchemaVersion,
		Metadata:      slices.Clone(existing.Metadata),
		Scenarios:     make([]Scenario, 0, len(existing.Scenarios)+len(sources)),
	}

	seen := make(map[int]bool, len(existing.Scenarios))
	for _, current := range existing.Scenarios {
		if seen[current.ID] {
			return Collection{}, MergeReport{}, fmt.Errorf("%w: %w", ErrInvalidCollection, &DuplicateIDError{ID: current.ID})
		}
		seen[current.ID] = true

		src, ok := sources[current.ID]
		if !ok {
			out.Scenarios = append(out.Scenarios, current.Clone())
			report.Skipped++
			continue
		}

		updated, err := m.normalizer.Normalize(withID(src, current.ID), &current)
		if err != nil {
			return Collection{}, MergeReport{}, fmt.Errorf("scenario %d: %w", current.ID, err)
		}
		before := current.Clone()
		change := ScenarioChange{
			ID:      current.ID,
			Name:    before.Name,
			Kind:    ChangeUpdated,
			Before:  &before,
			After:   updated,
			Changes: Diff(before, updated),
		}
		m.logger.Debug("scenario updated",
			zap.Int("id", current.ID),
			zap.Strings("changes", change.Changes))
		report.Changes = append(report.Changes, change)
		out.Scenarios = append(out.Scenarios, updated)
	}

	for _, id := range sortedKeys(sources) {
		if seen[id] {
			continue
		}
		created, err := m.normalizer.Normalize(withID(sources[id], id), nil)
		if err != nil {
			return Collection{}, MergeReport{}, fmt.Errorf("scenario %d: %w", id, err)
		}
		m.logger.Debug("scenario added", zap.Int("id", id), zap.String("name", created.Name))
		report.Changes = append(report.Changes, ScenarioChange{
			ID:      id,
			Name:    created.Name,
			Kind:    ChangeAdded,
			After:   created,
			Changes: []string{"Scenario added"},
		})
		out.Scenarios = append(out.Scenarios, created)
	}

	SortByID(out.Scenarios)
	slices.SortStableFunc(report.Changes, func(a, b ScenarioChange) int { return a.ID - b.ID })
	return out, report, nil
}

// =============================================================================
// APPEND
// =============================================================================

// AppendResult is the outcome of an additive append.
type AppendResult struct {
	Added   []Scenario `json:"added"`
	Skipped []int      `json:"skipped"`
}

// SkippedCount returns how many batch records were skipped as duplicates.
func (r AppendResult) SkippedCount() int { return len(r.Skipped) }

// Append normalizes every batch record whose id is new to target. Records
// with an id already in target, or already seen earlier in the batch, are
// skipped with a warning. A record without an id fails the whole append.
func (m *Merger) Append(target Collection, batch []RawScenario) (AppendResult, error) {
	existing := target.IDs()
	result := AppendResult{Added: []Scenario{}, Skipped: []int{}}

	for i, raw := range batch {
		if raw.ID == nil {
			e := &MissingIDError{Index: i}
			if raw.Name != nil {
				e.Name = *raw.Name
			}
			return AppendResult{}, e
		}
		id := *raw.ID
		if existing[id] {
			m.logger.Warn("scenario id already exists in target, skipping", zap.Int("id", id))
			result.Skipped = append(result.Skipped, id)
			continue
		}

		created, err := m.normalizer.Normalize(raw, nil)
		if err != nil {
			return AppendResult{}, fmt.Errorf("scenario %d: %w", id, err)
		}
		existing[id] = true
		result.Added = append(result.Added, created)
	}

	SortByID(result.Added)
	return result, nil
}

func withID(raw RawScenario, id int) RawScenario {
	raw.ID = &id
	return raw
}

func sortedKeys(m map[int]RawScenario) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
