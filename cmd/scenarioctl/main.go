/*
main.go - scenarioctl command-line entry point

PURPOSE:
  Operator tooling around the scenario collection file the feeder reads:
    extract   matrix workbook (xlsx/csv) -> flat scenario records
    update    merge records into the collection (dry run, review)
    append    add records whose ids are new
    validate  check a collection against the canonical schema

  Every write goes through store/file, which leaves a timestamped backup
  next to the collection.

GLOBAL FLAGS:
  --config     YAML configuration (default: scenario.yaml, optional)
  --verbose    Debug logging
  --no-color   Plain output

SEE ALSO:
  - config/config.go: Tables and extraction labels
  - report: Review file and terminal diff
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/scenario-engine/config"
	"github.com/warp/scenario-engine/factory"
	"github.com/warp/scenario-engine/report"
	"github.com/warp/scenario-engine/scenario"
	"github.com/warp/scenario-engine/store/file"
)

var (
	// Global flags
	configPath string
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scenarioctl",
	Short: "Maintain the leave and payroll scenario collection",
	Long: `scenarioctl converts scenario spreadsheets to JSON and merges them into
the canonical scenario collection.

Typical flow:
  scenarioctl extract -i matrix.xlsx -o ESLScenarios.json
  scenarioctl update --source ESLScenarios.json --dry-run
  scenarioctl update --source ESLScenarios.json --review`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err = cfg.Logger(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scenario.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// SHARED WIRING
// =============================================================================

func newNormalizer() *scenario.Normalizer {
	return scenario.NewNormalizer(cfg.ScenarioTables())
}

// collectionStore opens the collection file. Old collection files are
// migrated to the canonical shape as they are read.
func collectionStore(path string, n *scenario.Normalizer) *file.Store {
	f := factory.NewScenarioFactory(factory.WithLogger(logger))
	return file.New(path,
		file.WithLogger(logger),
		file.WithDecoder(func(data []byte) (scenario.Collection, error) {
			return f.ParseCollection(data, n)
		}),
	)
}

// targetPath returns the --target flag, or the configured collection.
func targetPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Collection
}

func renderer() *report.Renderer {
	if noColor {
		return report.NewRenderer(report.PlainStyles())
	}
	return report.NewRenderer(report.DefaultStyles())
}

func readBatch(path string) ([]scenario.RawScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}
	batch, err := factory.NewScenarioFactory(factory.WithLogger(logger)).ParseBatch(data)
	if err != nil {
		return nil, fmt.Errorf("source file %s: %w", path, err)
	}
	return batch, nil
}
