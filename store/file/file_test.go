package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scenario-engine/factory"
	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/store/file"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
}

func TestStore_LoadMissing(t *testing.T) {
	s := file.New(filepath.Join(t.TempDir(), "scenarios.json"))
	_, err := s.Load(context.Background())
	assert.True(t, errors.Is(err, scenario.ErrCollectionNotFound))
}

func TestStore_SaveCreatesBackup(t *testing.T) {
	// GIVEN: An existing scenarios file
	// WHEN: A new collection is saved
	// THEN: The old file is kept as a timestamped backup
	//   AND: The new document is readable

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scenarios": []}`), 0o644))

	s := file.New(path, file.WithClock(fixedClock))
	c := scenario.Collection{Scenarios: []scenario.Scenario{{ID: 1, Name: "Sick & <ESL>"}}}
	require.NoError(t, s.Save(ctx, c))

	backups, err := s.Backups()
	require.NoError(t, err)
	require.Equal(t, []string{path + ".backup.20240301_093015"}, backups)
	old, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, `{"scenarios": []}`, string(old))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name": "Sick & <ESL>"`)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Scenarios, 1)
	assert.Equal(t, "Sick & <ESL>", loaded.Scenarios[0].Name)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_FirstSaveHasNoBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.json")
	s := file.New(path)
	require.NoError(t, s.Save(context.Background(), scenario.Collection{}))

	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestStore_LoadMigratesLegacyFileWithBOM(t *testing.T) {
	// GIVEN: A BOM-prefixed file in the flat legacy shape
	// WHEN: Loaded with the factory decoder
	// THEN: Scenarios come back canonical

	path := filepath.Join(t.TempDir(), "scenarios.json")
	legacy := "\xEF\xBB\xBF" + `{"scenarios": [{"id": 3, "name": "Legacy", "process_level": 500,
		"updates": {"STD_HRS": {"base": "SCHED_HRS", "multiplier": 0.5}}}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	n := scenario.NewNormalizer(scenario.DefaultTables())
	f := factory.NewScenarioFactory()
	s := file.New(path, file.WithDecoder(func(data []byte) (scenario.Collection, error) {
		return f.ParseCollection(data, n)
	}))

	c, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Scenarios, 1)
	got := c.Scenarios[0]
	assert.Equal(t, []string{"STD_HOURS"}, got.Updates.Order)
	assert.Equal(t, "variables.ScheduledHours * 0.5", got.Updates.Fields["STD_HOURS"].Source)
	assert.Equal(t, "500", got.ProcessLevels[0].String())
}

func TestBackupPath(t *testing.T) {
	assert.Equal(t, "a/b.json.backup.20240301_093015", file.BackupPath("a/b.json", fixedClock()))
}
