// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/refinement-engine/internal/extract"
	"github.com/pdiddy/refinement-engine/internal/statefile"
)

var extractCmd = &cobra.Command{
	Use:   "extract [documents...]",
	Short: "Extract an initial knowledge state from Markdown documents",
	Long: `Extract reads Markdown documents and asks the configured model for the
claims in each section, with their evidence and confidence. Each document
becomes knowledge/states/<doc>-state.yaml, ready for refine or
knowledge store.

With --batch every .md file in the documents directory is processed and
documents whose state file is newer are skipped.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAIFlags(cmd, &cfg.AI)

	ext := cfg.Extraction
	if cmd.Flags().Changed("documents-dir") {
		ext.DocumentsDir, _ = cmd.Flags().GetString("documents-dir")
	}
	if cmd.Flags().Changed("knowledge-dir") {
		ext.KnowledgeDir, _ = cmd.Flags().GetString("knowledge-dir")
	}

	batch, _ := cmd.Flags().GetBool("batch")
	if !batch && len(args) == 0 {
		return fmt.Errorf("document path(s) or --batch required")
	}

	backend, err := newBackend(cfg.AI)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if batch {
		summary, err := extract.ExtractAll(ctx, backend, ext, cfg.AI.Model, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d extracted, %d skipped, %d failed\n", summary.Extracted, summary.Skipped, summary.Failed)
		if summary.HasFailures() {
			return fmt.Errorf("%d document(s) failed extraction", summary.Failed)
		}
		return nil
	}

	var failed int
	for _, mdPath := range args {
		docID := strings.TrimSuffix(filepath.Base(mdPath), filepath.Ext(mdPath))
		logger.Info("extracting", "doc", docID, "path", mdPath)

		state, err := extract.ExtractDocument(ctx, backend, docID, mdPath, cfg.AI.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed  %s: %v\n", docID, err)
			failed++
			continue
		}

		outPath := extract.StatePath(ext.KnowledgeDir, docID)
		if err := statefile.SaveState(outPath, state); err != nil {
			fmt.Fprintf(os.Stderr, "failed  %s: write error: %v\n", docID, err)
			failed++
			continue
		}
		fmt.Printf("extracted %s (%d claims) -> %s\n", docID, state.Len(), outPath)
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed extraction", failed)
	}
	return nil
}

func init() {
	extractCmd.Flags().String("documents-dir", "", "directory of Markdown documents used with --batch")
	extractCmd.Flags().String("knowledge-dir", "", "base directory for knowledge output (contains states/)")
	extractCmd.Flags().Bool("batch", false, "process every changed document in documents-dir")
	bindAIFlags(extractCmd)

	rootCmd.AddCommand(extractCmd)
}
