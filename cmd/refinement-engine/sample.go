// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write the built-in demonstration state",
	Long: `Sample prints a small five-claim state with a duplicate, a weak claim
and messy evidence, useful for trying refine:

  refinement-engine sample --out sample.yaml
  refinement-engine refine sample.yaml --operator normalize_evidence \
    --operator merge_duplicates=0.5 --operator remove_weak=0.5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state := types.SampleState()

		if path, _ := cmd.Flags().GetString("out"); path != "" {
			if err := statefile.SaveState(path, state); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "sample state written to %s\n", path)
			return nil
		}

		data, err := statefile.Marshal(statefile.FormatYAML, state)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	sampleCmd.Flags().String("out", "", "write the state to this file (.yaml or .json) instead of stdout")

	rootCmd.AddCommand(sampleCmd)
}
