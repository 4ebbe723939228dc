// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/refinement-engine/internal/knowledge"
	"github.com/pdiddy/refinement-engine/internal/statefile"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the claim base (store, search, show, export)",
	Long: `Knowledge manages a local SQLite claim base built from knowledge state
files. Use subcommands to index states, search claims, load a document's
state back out, or export.`,
}

// --- store subcommand ---

var knowledgeStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Ingest state files into the claim base",
	Long: `Store reads *-state.yaml files from knowledge/states/, ingests them into
a SQLite database with full-text indexing, and writes an export file.
Unchanged states are skipped on subsequent runs.`,
	RunE: runKnowledgeStore,
}

func runKnowledgeStore(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d state file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- put subcommand ---

var knowledgePutCmd = &cobra.Command{
	Use:   "put <doc-id> <state-file>",
	Short: "Store one state file under a document id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := statefile.LoadState(args[1])
		if err != nil {
			return err
		}
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Put(context.Background(), args[0], state); err != nil {
			return err
		}
		fmt.Printf("stored %s (%d claims)\n", args[0], state.Len())
		return nil
	},
}

// --- search subcommand ---

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored claims with full-text search and filters",
	Long: `Search queries the claim base using full-text search, structured
filters (document, section, minimum confidence), or both.

Use --trace with a claim ID and --doc to print the source section the
claim was extracted from.`,
	RunE: runKnowledgeSearch,
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if traceID, _ := cmd.Flags().GetString("trace"); traceID != "" {
		docID, _ := cmd.Flags().GetString("doc")
		if docID == "" {
			return fmt.Errorf("--trace requires --doc")
		}
		text, err := store.Trace(context.Background(), docID, traceID)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --doc, --section, or --min-confidence")
	}

	results, err := store.Search(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(results, jsonOutput)
}

func formatSearchOutput(results []knowledge.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-8s  %-50s  %-20s  %-12s  %s\n",
		"Rank", "ID", "Text", "Document", "Section", "Conf")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 108))

	for i, r := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %-8s  %-50s  %-20s  %-12s  %.2f\n",
			i+1, truncate(r.ID, 8), truncate(r.Text, 50), truncate(r.DocID, 20),
			truncate(r.Section, 12), r.Confidence)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// --- show subcommand ---

var knowledgeShowCmd = &cobra.Command{
	Use:   "show <doc-id>",
	Short: "Print a document's stored state as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.LoadState(context.Background(), args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshaling state: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the claim base to YAML or JSON",
	Long: `Export writes every stored claim (or a filtered subset) to
knowledge/index/export.yaml or export.json. Supports the same filter
flags as search for partial exports.`,
	RunE: runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to knowledge/index/export.yaml")
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to knowledge/index/export.json")
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

// bindKnowledgeFlags adds the claim base location flags to fs.
func bindKnowledgeFlags(fs *pflag.FlagSet) {
	fs.String("knowledge-dir", "", "base directory for knowledge (contains states/, index/)")
	fs.String("documents-dir", "", "directory of source Markdown documents used by --trace")
	fs.Int("max-results", 0, "maximum number of search results (0 = configured default)")
}

// knowledgeConfig starts from the loaded configuration and applies any
// claim base flags given on the command line.
func knowledgeConfig(cmd *cobra.Command, cfg types.Config) (types.KnowledgeBaseConfig, string) {
	kb := cfg.KnowledgeBase
	documentsDir := cfg.Extraction.DocumentsDir

	flags := cmd.Flags()
	if flags.Changed("knowledge-dir") {
		kb.KnowledgeDir, _ = flags.GetString("knowledge-dir")
	}
	if flags.Changed("documents-dir") {
		documentsDir, _ = flags.GetString("documents-dir")
	}
	if flags.Changed("max-results") {
		kb.MaxResults, _ = flags.GetInt("max-results")
	}
	return kb, documentsDir
}

func openStore(cmd *cobra.Command) (*knowledge.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	kb, documentsDir := knowledgeConfig(cmd, cfg)
	return knowledge.NewStore(kb, documentsDir)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	docID, _ := cmd.Flags().GetString("doc")
	section, _ := cmd.Flags().GetString("section")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	var limit int
	if cmd.Flags().Lookup("limit") != nil {
		limit, _ = cmd.Flags().GetInt("limit")
	}

	return knowledge.QueryOptions{
		Query:         queryText,
		DocID:         docID,
		Section:       section,
		MinConfidence: minConfidence,
		MaxResults:    limit,
	}
}

func addFilterFlags(cmd *cobra.Command, what string) {
	cmd.Flags().String("query", "", "full-text search query"+what)
	cmd.Flags().String("doc", "", "filter by document ID"+what)
	cmd.Flags().String("section", "", "filter by section"+what)
	cmd.Flags().Float64("min-confidence", 0, "drop claims below this confidence"+what)
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	bindKnowledgeFlags(knowledgeCmd.PersistentFlags())

	// Search flags.
	addFilterFlags(knowledgeSearchCmd, "")
	knowledgeSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default, negative = all)")
	knowledgeSearchCmd.Flags().String("trace", "", "show source context for a claim ID (requires --doc)")
	knowledgeSearchCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	addFilterFlags(knowledgeExportCmd, " for partial export")

	// Wire subcommands.
	knowledgeCmd.AddCommand(knowledgeStoreCmd)
	knowledgeCmd.AddCommand(knowledgePutCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeShowCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
