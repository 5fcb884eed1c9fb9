// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/ragprep/pkg/types"
)

// configureViper registers every pipeline key with its default so that
// RAGPREP_* environment variables and the config file can override it.
func configureViper(v *viper.Viper) {
	def := types.DefaultPipelineConfig()

	v.SetDefault("paths.raw_dir", def.Paths.RawDir)
	v.SetDefault("paths.processed_dir", def.Paths.ProcessedDir)
	v.SetDefault("paths.export_dir", def.Paths.ExportDir)
	v.SetDefault("paths.temp_dir", def.Paths.TempDir)

	v.SetDefault("conversion.backend", string(def.Conversion.Backend))
	v.SetDefault("conversion.device", string(def.Conversion.Device))
	v.SetDefault("conversion.timeout", def.Conversion.Timeout)
	v.SetDefault("conversion.marker_bin", def.Conversion.MarkerBin)
	v.SetDefault("conversion.image", def.Conversion.Image)

	v.SetDefault("chunking.min_tokens", def.Chunking.MinTokens)
	v.SetDefault("chunking.max_tokens", def.Chunking.MaxTokens)

	v.SetDefault("audit.duplicate_threshold", def.Audit.DuplicateThreshold)
	v.SetDefault("audit.merge_tolerance", def.Audit.MergeTolerance)
	v.SetDefault("audit.min_chars", def.Audit.MinChars)

	v.SetDefault("tagging.max_tags", def.Tagging.MaxTags)
	v.SetDefault("tagging.taxonomy", def.Tagging.Taxonomy)
	v.SetDefault("normalize.table", def.Normalize.Table)

	v.SetDefault("index.enabled", def.Index.Enabled)
	v.SetDefault("index.dir", def.Index.Dir)
	v.SetDefault("index.max_results", def.Index.MaxResults)

	v.SetDefault("save_intermediate", def.SaveIntermediate)
	v.SetDefault("workers", def.Workers)

	v.SetEnvPrefix("RAGPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig decodes the merged flag, environment, file and default
// settings and validates them.
func loadConfig(v *viper.Viper) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Verbose mode logs at debug level.
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format %q: use text or json", format)
}
