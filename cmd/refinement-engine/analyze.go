// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refinement-engine/internal/refine"
	"github.com/pdiddy/refinement-engine/internal/report"
	"github.com/pdiddy/refinement-engine/internal/statefile"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <record-file>",
	Short: "Summarize a saved refinement record",
	Long: `Analyze reads a record written by refine --out and reports whether the
run converged, how many operator applications it took, how many candidates
the invariant check rejected, and the claim-count trend across iterations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := statefile.LoadRecord(args[0])
		if err != nil {
			return err
		}

		format, err := report.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}

		r := report.New(rec, refine.AnalyzeStability(rec), nil)
		if withState, _ := cmd.Flags().GetBool("with-state"); withState {
			r.WithState(rec.FinalState)
		}
		return r.Write(os.Stdout, format)
	},
}

func init() {
	analyzeCmd.Flags().String("format", "text", "report format: text, json or yaml")
	analyzeCmd.Flags().Bool("with-state", false, "include the final state in json/yaml reports")

	rootCmd.AddCommand(analyzeCmd)
}
