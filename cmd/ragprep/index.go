// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ragprep/internal/export"
	"github.com/pdiddy/ragprep/internal/index"
	"github.com/pdiddy/ragprep/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the node index (store, search, list, remove, export)",
	Long: `Index manages a local SQLite database of processed nodes with FTS5
full-text search over content and section headings. Diacritics are
folded, so "tim mach" matches "tim mạch".`,
}

// --- store subcommand ---

var indexStoreCmd = &cobra.Command{
	Use:   "store [json...]",
	Short: "Store processed documents in the index",
	Long: `Store reads <doc_id>_lightrag.json files and replaces each document's
nodes in the index. With no arguments every processed document is stored.`,
	RunE: runIndexStore,
}

func runIndexStore(cmd *cobra.Command, args []string) error {
	cfg, store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	paths, err := resolveOutputs(cfg.Paths.ProcessedDir, args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	total := 0
	for _, p := range paths {
		out, err := export.ReadJSON(p)
		if err != nil {
			return err
		}
		n, err := store.Ingest(cmd.Context(), out)
		if err != nil {
			return err
		}
		total += n
		fmt.Fprintf(w, "stored: %s (%d nodes)\n", out.DocID, n)
	}
	fmt.Fprintf(w, "\n%d document(s), %d node(s)\n", len(paths), total)
	return nil
}

// --- search subcommand ---

var indexSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index with full-text search and filters",
	Long: `Search queries the index using FTS5 full-text search, structured
filters (domain, tag, document), or a combination of both.`,
	RunE: runIndexSearch,
}

func runIndexSearch(cmd *cobra.Command, args []string) error {
	_, store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --domain, --tag, or --doc")
	}

	results, err := store.Search(cmd.Context(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(cmd.OutOrStdout(), results, jsonOutput)
}

func formatSearchOutput(w io.Writer, results []index.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-50s  %-20s  %-16s  %s\n", "Rank", "Content", "Document", "Section", "Domain")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-50s  %-20s  %-16s  %s\n",
			i+1, clip(oneLine(r.Content), 50), clip(r.DocID, 20), clip(r.Section, 16), r.Domain)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

// clip shortens s to n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// --- list subcommand ---

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openIndex()
		if err != nil {
			return err
		}
		defer store.Close()

		docs, err := store.Documents(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(docs) == 0 {
			fmt.Fprintln(w, "Index is empty.")
			return nil
		}
		fmt.Fprintf(w, "%-30s  %-6s  %-20s  %s\n", "Document", "Nodes", "Processed", "Domains")
		fmt.Fprintln(w, strings.Repeat("-", 90))
		for _, d := range docs {
			fmt.Fprintf(w, "%-30s  %-6d  %-20s  %s\n",
				clip(d.ID, 30), d.TotalNodes, clip(d.ProcessedAt, 20), strings.Join(d.Domains, ", "))
		}
		fmt.Fprintf(w, "\n%d document(s)\n", len(docs))
		return nil
	},
}

// --- remove subcommand ---

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <doc_id>...",
	Short: "Remove documents and their nodes from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openIndex()
		if err != nil {
			return err
		}
		defer store.Close()

		w := cmd.OutOrStdout()
		for _, id := range args {
			ok, err := store.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(w, "not indexed: %s\n", id)
				continue
			}
			fmt.Fprintf(w, "removed: %s\n", id)
		}
		return nil
	},
}

// --- export subcommand ---

var indexExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export indexed nodes to YAML or JSON",
	Long: `Export writes the indexed nodes (or a filtered subset) to
export.yaml or export.json in the index directory. Supports the same
filter flags as search for partial exports.`,
	RunE: runIndexExport,
}

func runIndexExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	_, store, err := openIndex()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

// --- shared helpers ---

func openIndex() (types.PipelineConfig, *index.Store, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return cfg, nil, err
	}
	store, err := index.Open(cfg.Index)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, store, nil
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) index.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	domain, _ := cmd.Flags().GetString("domain")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	docID, _ := cmd.Flags().GetString("doc")
	limit, _ := cmd.Flags().GetInt("limit")

	return index.QueryOptions{
		Query:      queryText,
		Domain:     domain,
		Tags:       tags,
		DocID:      docID,
		MaxResults: limit,
	}
}

func addFilterFlags(cmd *cobra.Command, purpose string) {
	cmd.Flags().String("query", "", "full-text search query"+purpose)
	cmd.Flags().String("domain", "", "filter by domain"+purpose)
	cmd.Flags().StringSlice("tag", nil, "filter by tag, repeatable"+purpose)
	cmd.Flags().String("doc", "", "filter by document ID"+purpose)
}

func init() {
	indexCmd.PersistentFlags().Int("max-results", 20, "default maximum number of search results")
	bindFlags(indexCmd, map[string]string{"max-results": "index.max_results"})

	// Search flags.
	addFilterFlags(indexSearchCmd, "")
	indexSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	indexSearchCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	addFilterFlags(indexExportCmd, " for partial export")
	indexExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	indexExportCmd.Flags().Int("limit", 0, "maximum nodes to export (0 = all)")

	// Wire subcommands.
	indexCmd.AddCommand(indexStoreCmd)
	indexCmd.AddCommand(indexSearchCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexRemoveCmd)
	indexCmd.AddCommand(indexExportCmd)

	rootCmd.AddCommand(indexCmd)
}
