// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ragprep/internal/convert"
	"github.com/pdiddy/ragprep/internal/export"
	"github.com/pdiddy/ragprep/internal/index"
	"github.com/pdiddy/ragprep/internal/pipeline"
	"github.com/pdiddy/ragprep/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process [document.pdf]",
	Short: "Run the full pipeline on one PDF or a whole directory",
	Long: `Process converts a PDF to Markdown, cleans and normalizes the text,
splits it into token-bounded nodes, removes duplicates, merges undersized
nodes, tags every node and writes <doc_id>_lightrag.json to the processed
directory along with plain, detailed and training review exports.

The document may be a path or a file name in the raw directory, with or
without the .pdf extension. Use --batch to process every PDF in the raw
directory and --list to see what is there.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if list, _ := cmd.Flags().GetBool("list"); list {
		return listPDFs(w, cfg.Paths.RawDir)
	}

	batch, _ := cmd.Flags().GetBool("batch")
	if !batch && len(args) == 0 {
		return fmt.Errorf("document required: provide a PDF, --batch, or --list")
	}

	ctx := cmd.Context()
	conv, err := convert.New(ctx, cfg.Conversion, cfg.Paths.TempDir)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Index.Enabled {
		store, err := index.Open(cfg.Index)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithIndexer(store))
	}

	runner, err := pipeline.New(cfg, conv, opts...)
	if err != nil {
		return err
	}

	if batch {
		paths, err := pipeline.ListPDFs(cfg.Paths.RawDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no PDF files in %s", cfg.Paths.RawDir)
		}
		res := runner.RunBatch(ctx, paths, w)
		if res.HasFailures() {
			return fmt.Errorf("%d document(s) failed", res.Failed)
		}
		return nil
	}

	path, err := pipeline.FindPDF(cfg.Paths.RawDir, args[0])
	if err != nil {
		return err
	}
	out, err := runner.Run(ctx, path)
	if out != nil {
		printSummary(w, cfg, out)
	}
	return err
}

func printSummary(w io.Writer, cfg types.PipelineConfig, out *types.Output) {
	info := out.ProcessingInfo
	fmt.Fprintf(w, "processed: %s (%d nodes)\n", out.DocID, len(out.Nodes))
	fmt.Fprintf(w, "  output:     %s\n", export.JSONPath(cfg.Paths.ProcessedDir, out.DocID))
	fmt.Fprintf(w, "  pages:      %d (%s, %s)\n", info.PageCount, info.Converter, info.Device)
	fmt.Fprintf(w, "  tokens:     min %d, max %d, avg %.1f\n",
		info.ChunkingStats.MinTokens, info.ChunkingStats.MaxTokens, info.ChunkingStats.AvgTokens)
	fmt.Fprintf(w, "  audit:      %d duplicates removed, %d merges, %d dropped\n",
		info.AuditStats.DuplicatesRemoved, info.AuditStats.MergesPerformed, info.AuditStats.NodesDroppedQuality)
	fmt.Fprintf(w, "  tags:       %d unique, domains %v\n",
		info.TaggingStats.TotalUniqueTags, info.TaggingStats.DetectedDomains)
}

func listPDFs(w io.Writer, rawDir string) error {
	paths, err := pipeline.ListPDFs(rawDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintf(w, "No PDF files in %s\n", rawDir)
		return nil
	}
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	fmt.Fprintf(w, "\n%d PDF file(s)\n", len(paths))
	return nil
}

// bindFlags binds each of cmd's local or persistent flags to its config key.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("binding --%s: %v", flag, err))
		}
	}
}

func init() {
	processCmd.Flags().Int("min-tokens", 150, "minimum tokens per node")
	processCmd.Flags().Int("max-tokens", 400, "maximum tokens per node")
	processCmd.Flags().Float64("duplicate-threshold", 0.85, "similarity at or above which a node is a duplicate")
	processCmd.Flags().Bool("save-intermediate", false, "write a JSON snapshot after every stage")
	processCmd.Flags().String("device", "cpu", "conversion device: cpu or gpu")
	processCmd.Flags().String("backend", "marker", "conversion backend: marker, marker-container, or pdftext")
	processCmd.Flags().Bool("index", false, "store every processed document in the node index")
	processCmd.Flags().Int("workers", 1, "documents processed concurrently in batch mode")
	processCmd.Flags().Bool("batch", false, "process every PDF in the raw directory")
	processCmd.Flags().Bool("list", false, "list PDFs in the raw directory and exit")

	bindFlags(processCmd, map[string]string{
		"min-tokens":          "chunking.min_tokens",
		"max-tokens":          "chunking.max_tokens",
		"duplicate-threshold": "audit.duplicate_threshold",
		"save-intermediate":   "save_intermediate",
		"device":              "conversion.device",
		"backend":             "conversion.backend",
		"index":               "index.enabled",
		"workers":             "workers",
	})

	rootCmd.AddCommand(processCmd)
}
