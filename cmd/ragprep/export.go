// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ragprep/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [json...]",
	Short: "Render processed documents as review or training text",
	Long: `Export reads <doc_id>_lightrag.json files and renders them as plain text,
a detailed review listing, training text, a Markdown review page or
JSONL training samples. Arguments may be paths, file names in the
processed directory or bare document ids; with no arguments every
processed document is exported.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("format")
	formats, err := export.ParseFormat(name)
	if err != nil {
		return err
	}

	paths, err := resolveOutputs(cfg.Paths.ProcessedDir, args)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	now := time.Now()
	for _, p := range paths {
		out, err := export.ReadJSON(p)
		if err != nil {
			return err
		}
		for _, f := range formats {
			path, err := export.WriteText(cfg.Paths.ExportDir, out, f, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "exported: %s\n", path)
		}
	}
	fmt.Fprintf(w, "\n%d document(s), %d format(s)\n", len(paths), len(formats))
	return nil
}

// resolveOutputs maps CLI arguments to processed JSON paths. No
// arguments selects every processed document.
func resolveOutputs(processedDir string, args []string) ([]string, error) {
	if len(args) == 0 {
		paths, err := export.ListJSON(processedDir)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no processed documents in %s", processedDir)
		}
		return paths, nil
	}
	paths := make([]string, 0, len(args))
	for _, a := range args {
		p, err := export.ResolveJSON(processedDir, a)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func init() {
	exportCmd.Flags().String("format", "all", "export format: plain, detailed, training, markdown, jsonl, or all")
	rootCmd.AddCommand(exportCmd)
}
