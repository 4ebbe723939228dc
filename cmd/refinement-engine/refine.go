// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/refinement-engine/internal/knowledge"
	"github.com/pdiddy/refinement-engine/internal/metrics"
	"github.com/pdiddy/refinement-engine/internal/operator"
	"github.com/pdiddy/refinement-engine/internal/refine"
	"github.com/pdiddy/refinement-engine/internal/report"
	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

var refineCmd = &cobra.Command{
	Use:   "refine [state-file]",
	Short: "Run the operator pipeline on a knowledge state until it converges",
	Long: `Refine loads a knowledge state (YAML or JSON, or a document from the claim
base with --doc), applies the operator pipeline in order until one full pass
changes nothing or --max-iterations is reached, and prints the run report.

The pipeline comes from refine.operators in the config file unless given with
repeated --operator flags, e.g.

  refinement-engine refine state.yaml \
    --operator normalize_evidence \
    --operator merge_duplicates=0.5 \
    --operator remove_weak=0.5

A value sets merge_duplicates' threshold or remove_weak's minimum confidence
(an explicit 0 is kept); normalize_evidence=trim also trims whitespace and
drops empty evidence.

Model-backed operators (model_merge_duplicates, model_extract_assumptions)
need an API key for the configured provider.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefine,
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAIFlags(cmd, &cfg.AI)

	ctx := context.Background()

	kb, documentsDir := knowledgeConfig(cmd, cfg)
	initial, err := loadInitialState(ctx, cmd, args, kb, documentsDir)
	if err != nil {
		return err
	}

	specs := cfg.Refine.Operators
	if raw, _ := cmd.Flags().GetStringArray("operator"); len(raw) > 0 {
		specs = make([]types.OperatorSpec, 0, len(raw))
		for _, r := range raw {
			spec, err := operator.ParseSpec(r)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
	}

	deps := operator.Deps{Logger: logger}
	if operator.NeedsBackend(specs) {
		backend, err := newBackend(cfg.AI)
		if err != nil {
			return err
		}
		deps.Backend = backend
	}

	ops, err := operator.Build(specs, deps)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	eng, err := refine.New(ops, refine.Config{
		MaxIterations: cfg.Refine.MaxIterations,
		Verbose:       cfg.Refine.Verbose,
		Logger:        logger,
		Observer:      collector,
	})
	if err != nil {
		return err
	}

	rec := eng.Refine(ctx, initial)
	stability := refine.AnalyzeStability(rec)

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := statefile.SaveRecord(path, rec); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "record written to %s\n", path)
	}
	if path, _ := cmd.Flags().GetString("state-out"); path != "" {
		if err := statefile.SaveState(path, rec.FinalState); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "final state written to %s\n", path)
	}
	if put, _ := cmd.Flags().GetBool("put"); put {
		if err := storeFinalState(ctx, cmd, kb, documentsDir, rec.FinalState); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("metrics"); path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			return err
		}
	}

	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}
	r := report.New(rec, stability, eng.Operators())
	if withState, _ := cmd.Flags().GetBool("with-state"); withState {
		r.WithState(rec.FinalState)
	}
	return r.Write(os.Stdout, format)
}

// loadInitialState reads the state from the positional file argument or,
// with --doc, from the claim base.
func loadInitialState(ctx context.Context, cmd *cobra.Command, args []string, kb types.KnowledgeBaseConfig, documentsDir string) (*types.KnowledgeState, error) {
	docID, _ := cmd.Flags().GetString("doc")
	switch {
	case docID != "" && len(args) > 0:
		return nil, fmt.Errorf("give either a state file or --doc, not both")
	case docID != "":
		store, err := knowledge.NewStore(kb, documentsDir)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadState(ctx, docID)
	case len(args) == 1:
		return statefile.LoadState(args[0])
	default:
		return nil, fmt.Errorf("state file or --doc required (try `refinement-engine sample` for an example state)")
	}
}

// storeFinalState writes the refined state back to the claim base under the
// --doc identifier.
func storeFinalState(ctx context.Context, cmd *cobra.Command, kb types.KnowledgeBaseConfig, documentsDir string, state *types.KnowledgeState) error {
	docID, _ := cmd.Flags().GetString("doc")
	if docID == "" {
		return fmt.Errorf("--put requires --doc")
	}
	store, err := knowledge.NewStore(kb, documentsDir)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Put(ctx, docID, state); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "stored refined state for %s\n", docID)
	return nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	refineCmd.Flags().StringArray("operator", nil, "operator as name[=value], repeatable, in application order")
	refineCmd.Flags().Int("max-iterations", 100, "maximum number of passes over the pipeline")
	refineCmd.Flags().String("doc", "", "refine the stored state of this document from the claim base")
	refineCmd.Flags().String("out", "", "write the refinement record to this file (.yaml or .json)")
	refineCmd.Flags().String("state-out", "", "write the final state to this file (.yaml or .json)")
	refineCmd.Flags().String("metrics", "", "write Prometheus metrics for the run to this textfile")
	refineCmd.Flags().String("format", "text", "report format: text, json or yaml")
	refineCmd.Flags().Bool("with-state", false, "include the final state in json/yaml reports")
	refineCmd.Flags().Bool("put", false, "store the final state back in the claim base under --doc")
	bindKnowledgeFlags(refineCmd.Flags())
	bindAIFlags(refineCmd)

	viper.BindPFlag("refine.max_iterations", refineCmd.Flags().Lookup("max-iterations"))

	rootCmd.AddCommand(refineCmd)
}
