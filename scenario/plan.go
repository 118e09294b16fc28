package scenario

import (
	"context"
	"errors"
)

// Plan is a merge or append computed against a store but not yet written.
// Callers inspect Report or Appended, validate Collection, then Apply.
type Plan struct {
	// Collection is what Apply will save.
	Collection Collection

	// Report is set by PlanMerge.
	Report MergeReport

	// Appended is set by PlanAppend.
	Appended AppendResult

	// Created is true when the store held no collection and the plan
	// starts from an empty one.
	Created bool

	store CollectionStore
}

// Changed reports whether applying the plan would alter the store.
func (p Plan) Changed() bool {
	return p.Report.Modified() > 0 || len(p.Appended.Added) > 0
}

// Apply saves the planned collection.
func (p Plan) Apply(ctx context.Context) error {
	return p.store.Save(ctx, p.Collection)
}

// PlanMerge loads the stored collection and merges sources into it.
func (m *Merger) PlanMerge(ctx context.Context, cs CollectionStore, sources map[int]RawScenario) (Plan, error) {
	existing, created, err := loadOrEmpty(ctx, cs)
	if err != nil {
		return Plan{}, err
	}
	merged, report, err := m.Merge(existing, sources)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Collection: merged, Report: report, Created: created, store: cs}, nil
}

// PlanAppend loads the stored collection and appends the new batch records.
func (m *Merger) PlanAppend(ctx context.Context, cs CollectionStore, batch []RawScenario) (Plan, error) {
	target, created, err := loadOrEmpty(ctx, cs)
	if err != nil {
		return Plan{}, err
	}
	res, err := m.Append(target, batch)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Collection: target.With(res.Added...), Appended: res, Created: created, store: cs}, nil
}

func loadOrEmpty(ctx context.Context, cs CollectionStore) (Collection, bool, error) {
	c, err := cs.Load(ctx)
	if errors.Is(err, ErrCollectionNotFound) {
		return Collection{Scenarios: []Scenario{}}, true, nil
	}
	if err != nil {
		return Collection{}, false, err
	}
	return c, false, nil
}
