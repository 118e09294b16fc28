package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/scenario-engine/config"
	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/store/file"
)

// legacyTarget is a collection file written before updates were structured.
const legacyTarget = `{
  "scenarios": [
    {"id": 1, "name": "Old", "reason_code": "SICK", "process_level": 500,
     "conditions": {"required": ["C6"]},
     "updates": {"STD_HRS": "SCHED_HRS"}}
  ]
}`

const sourceBatch = `{"scenarios": [
  {"id": 1, "name": "New"},
  {"id": 2, "name": "Added", "updates": {"MANUAL_CHECK": "Y"}}
]}`

// setup resets the command globals and returns a command wired to buffers.
func setup(t *testing.T, stdin string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cfg = config.Default()
	logger = zap.NewNop()
	noColor = true

	updateSource, updateTarget, updateReport = "", "", ""
	updateDryRun, updateReview = false, false
	appendSource, appendTarget, appendOutput = "", "", ""
	appendDryRun = false
	extractInput, extractOutput, extractSheet = "", "", ""

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	return cmd, &out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadCollection(t *testing.T, path string) scenario.Collection {
	t.Helper()
	c, err := file.New(path).Load(context.Background())
	require.NoError(t, err)
	return c
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_WritesMergedCollection(t *testing.T) {
	// GIVEN: A legacy collection and a source batch renaming 1 and adding 2
	dir := t.TempDir()
	cmd, out := setup(t, "")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "source.json", sourceBatch)

	// WHEN: update runs
	require.NoError(t, runUpdate(cmd, nil))

	// THEN: The collection is canonical, merged, and backed up
	c := loadCollection(t, updateTarget)
	require.Len(t, c.Scenarios, 2)
	assert.Equal(t, "New", c.Scenarios[0].Name)
	assert.Equal(t, "SICK", c.Scenarios[0].ReasonCode)
	assert.Equal(t, []string{"STD_HOURS"}, c.Scenarios[0].Updates.Order)
	assert.Equal(t, "Added", c.Scenarios[1].Name)

	backups, err := file.New(updateTarget).Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	assert.Contains(t, out.String(), "- Found 2 scenarios in source")
	assert.Contains(t, out.String(), "Successfully wrote updated collection")
}

func TestUpdate_DryRunWritesReviewFile(t *testing.T) {
	dir := t.TempDir()
	cmd, out := setup(t, "")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "source.json", sourceBatch)
	updateReport = filepath.Join(dir, "review.txt")
	updateDryRun = true

	require.NoError(t, runUpdate(cmd, nil))

	data, err := os.ReadFile(updateTarget)
	require.NoError(t, err)
	assert.Equal(t, legacyTarget, string(data))

	review, err := os.ReadFile(updateReport)
	require.NoError(t, err)
	assert.Contains(t, string(review), "• Name changed from 'Old' to 'New'")
	assert.Contains(t, string(review), "(new scenario)")
	assert.Contains(t, out.String(), "Full changes saved to "+updateReport)
}

func TestUpdate_ReviewDeclined(t *testing.T) {
	// GIVEN: An operator who steps through and answers n
	dir := t.TempDir()
	cmd, out := setup(t, "\n\nn\n")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "source.json", sourceBatch)
	updateReview = true

	require.NoError(t, runUpdate(cmd, nil))

	// THEN: Diffs were shown and nothing was written
	assert.Contains(t, out.String(), `+  "name": "New",`)
	assert.Contains(t, out.String(), "Changes not applied")
	data, err := os.ReadFile(updateTarget)
	require.NoError(t, err)
	assert.Equal(t, legacyTarget, string(data))
}

func TestUpdate_ReviewQuitThenApply(t *testing.T) {
	dir := t.TempDir()
	cmd, _ := setup(t, "q\ny\n")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "source.json", sourceBatch)
	updateReview = true

	require.NoError(t, runUpdate(cmd, nil))
	assert.Len(t, loadCollection(t, updateTarget).Scenarios, 2)
}

func TestUpdate_Errors(t *testing.T) {
	dir := t.TempDir()

	cmd, _ := setup(t, "")
	updateTarget = filepath.Join(dir, "absent.json")
	updateSource = writeFile(t, dir, "source.json", sourceBatch)
	assert.ErrorContains(t, runUpdate(cmd, nil), "target collection not found")

	cmd, _ = setup(t, "")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "noid.json", `[{"name": "no id"}]`)
	assert.ErrorIs(t, runUpdate(cmd, nil), scenario.ErrMissingID)
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppend_ToOutputFile(t *testing.T) {
	// GIVEN: A batch repeating id 1 and adding 3
	dir := t.TempDir()
	cmd, out := setup(t, "")
	appendTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	appendSource = writeFile(t, dir, "new.json", `[{"id": 1, "name": "Dup"}, {"id": 3, "name": "Three"}]`)
	appendOutput = filepath.Join(dir, "out.json")

	// WHEN: append writes to --output
	require.NoError(t, runAppend(cmd, nil))

	// THEN: Only 3 is written and the collection is untouched
	data, err := os.ReadFile(appendOutput)
	require.NoError(t, err)
	var added []scenario.Scenario
	require.NoError(t, json.Unmarshal(data, &added))
	require.Len(t, added, 1)
	assert.Equal(t, 3, added[0].ID)

	target, err := os.ReadFile(appendTarget)
	require.NoError(t, err)
	assert.Equal(t, legacyTarget, string(target))

	assert.Contains(t, out.String(), "Added 1 new scenarios")
	assert.Contains(t, out.String(), "Skipped 1 scenarios with existing ids")
}

func TestAppend_IntoCollection(t *testing.T) {
	dir := t.TempDir()
	cmd, _ := setup(t, "")
	appendTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	appendSource = writeFile(t, dir, "new.json", `[{"id": 3, "name": "Three"}]`)

	require.NoError(t, runAppend(cmd, nil))

	c := loadCollection(t, appendTarget)
	require.Len(t, c.Scenarios, 2)
	assert.Equal(t, "Old", c.Scenarios[0].Name)
	assert.Equal(t, 3, c.Scenarios[1].ID)
}

// =============================================================================
// EXTRACT / VALIDATE
// =============================================================================

func TestExtract_CSV(t *testing.T) {
	dir := t.TempDir()
	cmd, out := setup(t, "")
	extractInput = writeFile(t, dir, "matrix.csv",
		",,7\n,,Leave\n,,Desc\n,,500\n,,ILOA\nC6,,TRUE\nHeader,Fields\n,STD_HRS,0.5\n")
	extractOutput = filepath.Join(dir, "out.json")

	require.NoError(t, runExtract(cmd, nil))

	data, err := os.ReadFile(extractOutput)
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"id": 7, "name": "Leave", "description": "Desc", "process_levels": [500],
		"reason_code": "ILOA", "is_skip_scenario": false,
		"conditions": {"forbidden": [], "required": ["C6"]},
		"fields": {"STD_HRS": 0.5}
	}]`, string(data))
	assert.Contains(t, out.String(), "Wrote 1 scenarios")
}

func TestValidate_Collection(t *testing.T) {
	// GIVEN: A collection written by update, and the legacy original
	dir := t.TempDir()
	cmd, _ := setup(t, "")
	updateTarget = writeFile(t, dir, "scenarios.json", legacyTarget)
	updateSource = writeFile(t, dir, "source.json", sourceBatch)
	require.NoError(t, runUpdate(cmd, nil))

	// WHEN/THEN: The canonical file passes
	cmd, out := setup(t, "")
	require.NoError(t, runValidate(cmd, []string{filepath.Join(dir, "scenarios.json")}))
	assert.Contains(t, out.String(), "2 scenarios valid")

	// WHEN/THEN: The legacy file is reported
	cmd, out = setup(t, "")
	legacy := writeFile(t, dir, "legacy.json", legacyTarget)
	assert.ErrorContains(t, runValidate(cmd, []string{legacy}), "violation")
	assert.NotEmpty(t, out.String())
}
