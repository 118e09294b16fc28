package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/scenario-engine/factory"
	"github.com/warp/scenario-engine/report"
	"github.com/warp/scenario-engine/scenario"
)

var (
	updateSource string
	updateTarget string
	updateDryRun bool
	updateReport string
	updateReview bool
)

// updateCmd merges source records into the collection.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Merge scenario records into the collection",
	Long: `Merges every source record into the scenario with the same id, adding
the ones that are new. Attributes a record leaves out keep their current
value.

Modes:
  (default)   write the merged collection, after backing it up
  --dry-run   write nothing; save a review file of all changes
  --review    step through a diff of each scenario, then confirm

Example:
  scenarioctl update --source ESLScenarios.json --target scenarios.json --dry-run`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateSource, "source", "", "Source JSON with scenario records")
	updateCmd.Flags().StringVar(&updateTarget, "target", "", "Collection file to update (default: configured collection)")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Don't write changes; save a review file instead")
	updateCmd.Flags().StringVar(&updateReport, "report", "", "Review file path for --dry-run (default: scenario_changes_<timestamp>.txt)")
	updateCmd.Flags().BoolVar(&updateReview, "review", false, "Review each change before applying")
	_ = updateCmd.MarkFlagRequired("source")
	updateCmd.MarkFlagsMutuallyExclusive("dry-run", "review")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	r := renderer()

	n := newNormalizer()
	store := collectionStore(targetPath(updateTarget), n)

	batch, err := readBatch(updateSource)
	if err != nil {
		return err
	}
	sources, err := factory.SourceMap(batch)
	if err != nil {
		return err
	}

	plan, err := scenario.NewMerger(n, scenario.WithLogger(logger)).PlanMerge(ctx, store, sources)
	if err != nil {
		return err
	}
	if plan.Created {
		return fmt.Errorf("target collection not found at %s", store.Path())
	}
	if err := validateCollection(n, plan.Collection); err != nil {
		return err
	}
	rep := plan.Report

	fmt.Fprintln(out, r.MergeSummary(rep))

	switch {
	case updateReview:
		if !reviewChanges(cmd.InOrStdin(), out, r, rep) {
			fmt.Fprintln(out, "Changes not applied. Original file preserved.")
			return nil
		}
	case updateDryRun:
		return writeReviewFile(out, rep)
	}

	if err := plan.Apply(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Successfully wrote updated collection to %s\n", store.Path())
	return nil
}

// reviewChanges walks the operator through each touched scenario and asks
// for confirmation. It returns true when the changes should be applied.
func reviewChanges(in io.Reader, out io.Writer, r *report.Renderer, rep scenario.MergeReport) bool {
	reader := bufio.NewReader(in)
	for _, change := range rep.Changes {
		fmt.Fprintln(out, r.Change(change))
		if !change.HasChanges() {
			continue
		}
		fmt.Fprintln(out, "Press Enter to continue, 'q' to quit review...")
		line, _ := reader.ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(line), "q") {
			break
		}
	}

	fmt.Fprintln(out, "Do you want to apply these changes? (y/n):")
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func writeReviewFile(out io.Writer, rep scenario.MergeReport) error {
	path := updateReport
	if path == "" {
		path = fmt.Sprintf("scenario_changes_%s.txt", time.Now().Format("20060102_150405"))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create review file: %w", err)
	}
	defer f.Close()
	if err := report.WriteReview(f, rep); err != nil {
		return fmt.Errorf("write review file: %w", err)
	}
	logger.Debug("review file written", zap.String("path", path), zap.Int("scenarios", len(rep.Changes)))

	fmt.Fprintln(out, "Dry run - not writing changes to the collection")
	fmt.Fprintf(out, "Full changes saved to %s for review\n", path)
	if len(rep.Changes) > 0 {
		fmt.Fprintln(out, "Sample of first updated scenario:")
		fmt.Fprintln(out, report.ScenarioJSON(rep.Changes[0].After))
	}
	return nil
}

// validateCollection refuses to write a collection that breaks the schema.
func validateCollection(n *scenario.Normalizer, c scenario.Collection) error {
	v, err := scenario.NewValidator(n)
	if err != nil {
		return err
	}
	if err := v.Validate(c); err != nil {
		var verr *scenario.ValidationError
		if errors.As(err, &verr) {
			for _, violation := range verr.Violations {
				logger.Error("collection violation", zap.String("violation", violation.String()))
			}
		}
		return fmt.Errorf("merged collection is invalid: %w", err)
	}
	return nil
}
