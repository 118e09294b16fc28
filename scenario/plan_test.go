package scenario_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/scenario/store"
)

func TestPlanMerge_ApplySaves(t *testing.T) {
	// GIVEN: A store holding scenario 1
	// WHEN: A rename of 1 is planned
	// THEN: Nothing is saved until Apply

	ctx := context.Background()
	mem := store.NewMemoryWith(collectionOf(canonicalScenario(t, 1, "Old")))
	m := scenario.NewMerger(newNormalizer())

	plan, err := m.PlanMerge(ctx, mem, map[int]scenario.RawScenario{
		1: {ID: scenario.IntPtr(1), Name: scenario.StringPtr("New")},
	})
	require.NoError(t, err)
	assert.False(t, plan.Created)
	assert.True(t, plan.Changed())
	assert.Equal(t, 1, plan.Report.Count(scenario.ChangeUpdated))
	assert.Equal(t, 0, mem.Saves())

	require.NoError(t, plan.Apply(ctx))
	assert.Equal(t, 1, mem.Saves())

	stored, err := mem.Load(ctx)
	require.NoError(t, err)
	s, ok := stored.Find(1)
	require.True(t, ok)
	assert.Equal(t, "New", s.Name)
}

func TestPlanMerge_EmptyStore(t *testing.T) {
	plan, err := scenario.NewMerger(newNormalizer()).PlanMerge(context.Background(), store.NewMemory(),
		map[int]scenario.RawScenario{4: legacyScenario(t, 4, "Four")})
	require.NoError(t, err)
	assert.True(t, plan.Created)
	assert.Equal(t, []int{4}, ids(plan.Collection))
}

func TestPlanMerge_UnchangedSourceIsNotAChange(t *testing.T) {
	ctx := context.Background()
	existing := canonicalScenario(t, 1, "Same")
	mem := store.NewMemoryWith(collectionOf(existing))

	plan, err := scenario.NewMerger(newNormalizer()).PlanMerge(ctx, mem, map[int]scenario.RawScenario{
		1: {ID: scenario.IntPtr(1), Name: scenario.StringPtr("Same")},
	})
	require.NoError(t, err)
	assert.False(t, plan.Changed())
}

func TestPlanAppend(t *testing.T) {
	// GIVEN: A store holding scenario 1
	// WHEN: 1 and 2 are appended
	// THEN: Only 2 is planned, and Apply stores both

	ctx := context.Background()
	mem := store.NewMemoryWith(collectionOf(canonicalScenario(t, 1, "One")))

	plan, err := scenario.NewMerger(newNormalizer()).PlanAppend(ctx, mem, []scenario.RawScenario{
		legacyScenario(t, 1, "Dup"),
		legacyScenario(t, 2, "Two"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, plan.Appended.Skipped)
	require.Len(t, plan.Appended.Added, 1)
	assert.Equal(t, []int{1, 2}, ids(plan.Collection))

	require.NoError(t, plan.Apply(ctx))
	stored, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids(stored))
}

func TestPlan_PropagatesLoadErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := scenario.NewMerger(newNormalizer()).PlanMerge(context.Background(), failingStore{boom}, nil)
	assert.ErrorIs(t, err, boom)
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (scenario.Collection, error) {
	return scenario.Collection{}, f.err
}

func (f failingStore) Save(context.Context, scenario.Collection) error { return f.err }

func TestPlanMerge_FlagOnlyChangeIsAChange(t *testing.T) {
	// GIVEN: An active scenario
	// WHEN: A source only sets is_active to false
	// THEN: The plan reports a change that names the flag

	ctx := context.Background()
	existing := canonicalScenario(t, 1, "A")
	existing.IsActive = scenario.BoolPtr(true)
	mem := store.NewMemoryWith(collectionOf(existing))

	plan, err := scenario.NewMerger(newNormalizer()).PlanMerge(ctx, mem, map[int]scenario.RawScenario{
		1: {ID: scenario.IntPtr(1), IsActive: scenario.BoolPtr(false)},
	})
	require.NoError(t, err)
	assert.True(t, plan.Changed())
	assert.Equal(t, 1, plan.Report.Modified())
	require.Len(t, plan.Report.Changes, 1)
	assert.Equal(t, []string{"Active flag changed from true to false"}, plan.Report.Changes[0].Changes)
}
