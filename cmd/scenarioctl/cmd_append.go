package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/scenario-engine/scenario"
)

var (
	appendSource string
	appendTarget string
	appendOutput string
	appendDryRun bool
)

// appendCmd adds records whose ids are not in the collection yet.
var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Add new scenarios, skipping ids already in the collection",
	Long: `Normalizes every source record whose id is not already in the target
collection. Records with an existing id are skipped with a warning.

With --output the new scenarios are written to that file as a JSON
array and the collection is left alone; otherwise they are added to the
collection.

Example:
  scenarioctl append --source new.json --target scenarios.json`,
	RunE: runAppend,
}

func init() {
	appendCmd.Flags().StringVarP(&appendSource, "source", "s", "", "Source JSON with new scenario records")
	appendCmd.Flags().StringVarP(&appendTarget, "target", "t", "", "Collection to check and extend (default: configured collection)")
	appendCmd.Flags().StringVarP(&appendOutput, "output", "o", "", "Write the new scenarios here instead of into the collection")
	appendCmd.Flags().BoolVar(&appendDryRun, "dry-run", false, "Report what would be added without writing")
	_ = appendCmd.MarkFlagRequired("source")
}

func runAppend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	n := newNormalizer()
	store := collectionStore(targetPath(appendTarget), n)

	batch, err := readBatch(appendSource)
	if err != nil {
		return err
	}

	plan, err := scenario.NewMerger(n, scenario.WithLogger(logger)).PlanAppend(ctx, store, batch)
	if err != nil {
		return err
	}
	if plan.Created {
		return fmt.Errorf("target collection not found at %s", store.Path())
	}
	res := plan.Appended
	fmt.Fprintln(out, renderer().AppendSummary(res))

	switch {
	case appendDryRun:
		fmt.Fprintln(out, "Dry run - nothing written")
		return nil
	case appendOutput != "":
		return writeScenarios(appendOutput, res.Added)
	case !plan.Changed():
		return nil
	}

	if err := validateCollection(n, plan.Collection); err != nil {
		return err
	}
	if err := plan.Apply(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Successfully wrote updated collection to %s\n", store.Path())
	return nil
}

func writeScenarios(path string, scenarios []scenario.Scenario) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scenarios); err != nil {
		return fmt.Errorf("encode scenarios: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
