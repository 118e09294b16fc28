package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/scenario-engine/scenario"
)

// validateCmd checks a collection file without changing it.
var validateCmd = &cobra.Command{
	Use:   "validate [collection]",
	Short: "Validate a collection file against the canonical schema",
	Long: `Checks that every scenario is in canonical form: structured updates
whose order matches their fields, derived variables_required and logging,
no deprecated process_level, ids unique and sorted.

Defaults to the configured collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := cfg.Collection
	if len(args) == 1 {
		path = args[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	v, err := scenario.NewValidator(newNormalizer())
	if err != nil {
		return err
	}

	if err := v.ValidateJSON(data); err != nil {
		var verr *scenario.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, violation := range verr.Violations {
			fmt.Fprintln(out, violation.String())
		}
		return fmt.Errorf("%s: %d violation(s)", path, len(verr.Violations))
	}

	var c scenario.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d scenarios valid\n", path, len(c.Scenarios))
	return nil
}
