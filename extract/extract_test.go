package extract_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/scenario-engine/extract"
	"github.com/warp/scenario-engine/scenario"
)

// matrix is a small scenario workbook: two scenario columns (12, 3) and a
// notes column without an id.
var matrix = [][]string{
	{"", "", "12", "3", "notes"},
	{"", "", "Intermittent", "Sick"},
	{"", "", "Intermittent leave", "Basic sick"},
	{"", "", "500, 900", "ALL"},
	{"", "", "ILOA", "SICK"},
	{"C6", "On leave", "TRUE", "FALSE"},
	{"C21", "Exempt", "0", ""},
	{"Header", "Fields"},
	{"", "STD_HRS", "0.60", "SCHED_HRS"},
	{"", "MANUAL_CHECK", "Y", ""},
	{"", "AUTH_BY", "", "FALSE"},
	{"", "UNKNOWN_FIELD", "x", "y"},
}

func TestExtract_Matrix(t *testing.T) {
	// GIVEN: A matrix with two scenario columns
	// WHEN: Extracted
	// THEN: Records sorted by id with conditions and configured fields

	records := extract.NewExtractor(nil).Extract(matrix)
	require.Len(t, records, 2)

	sick, leave := records[0], records[1]
	assert.Equal(t, 3, sick.ID)
	assert.Equal(t, 12, leave.ID)

	assert.Equal(t, "Intermittent", *leave.Name)
	assert.Equal(t, []string{"500", "900"}, levelStrings(leave.ProcessLevels))
	assert.False(t, leave.ProcessLevels[0].IsText())
	assert.Equal(t, "ILOA", *leave.ReasonCode)
	assert.Equal(t, []string{"C6"}, leave.Required)
	assert.Equal(t, []string{"C21"}, leave.Forbidden)

	assert.Equal(t, []string{"ALL"}, levelStrings(sick.ProcessLevels))
	assert.True(t, sick.ProcessLevels[0].IsText())
	assert.Empty(t, sick.Required)
	assert.Equal(t, []string{"C6"}, sick.Forbidden)

	names := make([]string, len(leave.Fields))
	for i, f := range leave.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"STD_HRS", "MANUAL_CHECK", "AUTH_BY"}, names)
}

func TestExtract_CellValues(t *testing.T) {
	records := extract.NewExtractor(nil).Extract(matrix)
	data, err := json.Marshal(records)
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"id": 3, "name": "Sick", "description": "Basic sick", "process_levels": ["ALL"],
		 "reason_code": "SICK", "is_skip_scenario": false,
		 "conditions": {"forbidden": ["C6"], "required": []},
		 "fields": {"STD_HRS": "SCHED_HRS", "MANUAL_CHECK": null, "AUTH_BY": 0}},
		{"id": 12, "name": "Intermittent", "description": "Intermittent leave", "process_levels": [500, 900],
		 "reason_code": "ILOA", "is_skip_scenario": false,
		 "conditions": {"forbidden": ["C21"], "required": ["C6"]},
		 "fields": {"STD_HRS": 0.6, "MANUAL_CHECK": "Y", "AUTH_BY": null}}
	]`, string(data))

	// key order is stable
	assert.True(t, strings.HasPrefix(string(data), `[{"id":3,"name":"Sick","description"`))
}

func TestExtract_RecordsNormalize(t *testing.T) {
	// GIVEN: Extracted records
	// WHEN: Normalized
	// THEN: Canonical scenarios with structured updates

	n := scenario.NewNormalizer(scenario.DefaultTables())
	records := extract.NewExtractor(nil).Extract(matrix)

	s, err := n.Normalize(records[0].Raw(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"STD_HOURS", "MANUAL_CHECK", "AUTH_BY"}, s.Updates.Order)
	assert.Equal(t, "variables.ScheduledHours", s.Updates.Fields["STD_HOURS"].Source)
	assert.True(t, s.Updates.Fields["MANUAL_CHECK"].AllowNull)
	require.NotNil(t, s.IsSkipScenario)
	assert.False(t, *s.IsSkipScenario)
}

func TestExtract_CustomLabels(t *testing.T) {
	records := extract.NewExtractor([]string{"UNKNOWN_FIELD"}).Extract(matrix)
	require.Len(t, records, 2)
	require.Len(t, records[1].Fields, 1)
	assert.Equal(t, "UNKNOWN_FIELD", records[1].Fields[0].Name)
}

func TestExtract_EmptyGrid(t *testing.T) {
	assert.Empty(t, extract.NewExtractor(nil).Extract(nil))
}

// =============================================================================
// READER TESTS
// =============================================================================

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBF,,7\n,,Name\n,,Desc,extra\n"
	grid, err := extract.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, grid, 3)
	assert.Equal(t, "", grid[0][0])
	assert.Equal(t, "7", grid[0][2])
	assert.Len(t, grid[2], 4)
}

func TestReadXLSX(t *testing.T) {
	// GIVEN: A workbook written with typed cells
	// WHEN: Read back and extracted
	// THEN: Booleans and numbers come out the way Excel shows them

	path := filepath.Join(t.TempDir(), "matrix.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := map[string]any{
		"C1": 12, "C2": "Intermittent", "C4": "500", "C5": "ILOA",
		"A6": "C6", "C6": true,
		"B7": "STD_HRS", "C7": 0.6,
	}
	for ref, v := range cells {
		require.NoError(t, f.SetCellValue(sheet, ref, v))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	grid, err := extract.ReadGrid(path, "")
	require.NoError(t, err)

	records := extract.NewExtractor(nil).Extract(grid)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].ID)
	assert.Equal(t, []string{"C6"}, records[0].Required)
	require.Len(t, records[0].Fields, 1)

	b, err := json.Marshal(records[0].Fields[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "0.6", string(b))
}

func TestReadGrid_UnsupportedFormat(t *testing.T) {
	_, err := extract.ReadGrid("matrix.ods", "")
	assert.True(t, errors.Is(err, extract.ErrUnsupportedFormat))
}

func levelStrings(levels []scenario.ProcessLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.String()
	}
	return out
}
