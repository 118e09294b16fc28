package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/scenario-engine/extract"
)

var (
	extractInput  string
	extractOutput string
	extractSheet  string
)

// extractCmd converts a scenario matrix workbook to JSON records.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Convert a scenario matrix (xlsx or csv) to JSON",
	Long: `Reads the scenario matrix, one column per scenario, and writes the
records as a JSON array sorted by id. Field rows are the configured
extract.field_labels.

Example:
  scenarioctl extract -i matrix.xlsx -o ESLScenarios.json -s Matrix`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "Path to the xlsx or csv matrix")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Path to write JSON")
	extractCmd.Flags().StringVarP(&extractSheet, "sheet", "s", "", "Sheet name (default: configured sheet, else the first)")
	_ = extractCmd.MarkFlagRequired("input")
	_ = extractCmd.MarkFlagRequired("output")
}

func runExtract(cmd *cobra.Command, args []string) error {
	sheet := extractSheet
	if sheet == "" {
		sheet = cfg.Extract.Sheet
	}

	grid, err := extract.ReadGrid(extractInput, sheet)
	if err != nil {
		return err
	}
	records := extract.NewExtractor(cfg.Extract.FieldLabels).Extract(grid)
	if records == nil {
		records = []extract.Record{}
	}
	logger.Debug("matrix extracted",
		zap.String("input", extractInput),
		zap.Int("rows", len(grid)),
		zap.Int("scenarios", len(records)))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := os.WriteFile(extractOutput, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", extractOutput, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d scenarios to %s\n", len(records), extractOutput)
	return nil
}
