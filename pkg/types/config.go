// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Device is the compute hint forwarded to the conversion backend.
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// ParseDevice validates a device flag value.
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case DeviceCPU, DeviceGPU:
		return Device(s), nil
	case "":
		return DeviceCPU, nil
	}
	return "", fmt.Errorf("unsupported device %q: use cpu or gpu", s)
}

// ConversionBackend identifies the PDF-to-Markdown tool.
type ConversionBackend string

const (
	BackendMarker          ConversionBackend = "marker"
	BackendMarkerContainer ConversionBackend = "marker-container"
	BackendPDFText         ConversionBackend = "pdftext"
)

// PathsConfig holds the working directories of the pipeline.
type PathsConfig struct {
	// RawDir holds input PDFs (e.g. "data/raw").
	RawDir string `json:"raw_dir" yaml:"raw_dir" mapstructure:"raw_dir"`

	// ProcessedDir receives the <doc_id>_lightrag.json outputs.
	ProcessedDir string `json:"processed_dir" yaml:"processed_dir" mapstructure:"processed_dir"`

	// ExportDir receives the text review exports.
	ExportDir string `json:"export_dir" yaml:"export_dir" mapstructure:"export_dir"`

	// TempDir receives intermediate stage snapshots and converter scratch files.
	TempDir string `json:"temp_dir" yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	// Backend selects the conversion tool: marker, marker-container, or pdftext.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Device is forwarded to marker; it has no effect on the other stages.
	Device Device `json:"device" yaml:"device" mapstructure:"device"`

	// Timeout bounds a single conversion call (default 10m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MarkerBin is the marker_single executable name or path.
	MarkerBin string `json:"marker_bin" yaml:"marker_bin" mapstructure:"marker_bin"`

	// Image is the container image used by the marker-container backend.
	Image string `json:"image" yaml:"image" mapstructure:"image"`
}

// ChunkingConfig bounds the size of produced nodes.
type ChunkingConfig struct {
	MinTokens int `json:"min_tokens" yaml:"min_tokens" mapstructure:"min_tokens"`
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AuditConfig holds the deduplication and merge settings.
type AuditConfig struct {
	// DuplicateThreshold is the similarity at or above which a node is a duplicate.
	DuplicateThreshold float64 `json:"duplicate_threshold" yaml:"duplicate_threshold" mapstructure:"duplicate_threshold"`

	// MergeTolerance is the fraction a merged node may exceed MaxTokens by.
	MergeTolerance float64 `json:"merge_tolerance" yaml:"merge_tolerance" mapstructure:"merge_tolerance"`

	// MinChars is the absolute character floor for a node to survive.
	MinChars int `json:"min_chars" yaml:"min_chars" mapstructure:"min_chars"`
}

// TaggingConfig holds settings for the keyword tagger.
type TaggingConfig struct {
	// MaxTags caps tags per node (default 10).
	MaxTags int `json:"max_tags" yaml:"max_tags" mapstructure:"max_tags"`

	// Taxonomy is an optional YAML file replacing the built-in keyword tables.
	Taxonomy string `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty" mapstructure:"taxonomy"`
}

// NormalizeConfig holds settings for the Vietnamese normalizer.
type NormalizeConfig struct {
	// Table is an optional YAML file replacing the OCR substitution table.
	Table string `json:"table,omitempty" yaml:"table,omitempty" mapstructure:"table"`
}

// IndexConfig holds settings for the node index.
type IndexConfig struct {
	// Enabled upserts every processed document into the index.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Dir holds nodes.db and index exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default search result limit (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// PipelineConfig groups all stage configurations. It is passed explicitly
// into each stage; no stage reads global state.
type PipelineConfig struct {
	Paths      PathsConfig      `json:"paths" yaml:"paths" mapstructure:"paths"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Chunking   ChunkingConfig   `json:"chunking" yaml:"chunking" mapstructure:"chunking"`
	Audit      AuditConfig      `json:"audit" yaml:"audit" mapstructure:"audit"`
	Tagging    TaggingConfig    `json:"tagging" yaml:"tagging" mapstructure:"tagging"`
	Normalize  NormalizeConfig  `json:"normalize" yaml:"normalize" mapstructure:"normalize"`
	Index      IndexConfig      `json:"index" yaml:"index" mapstructure:"index"`

	// SaveIntermediate writes a JSON snapshot after every stage.
	SaveIntermediate bool `json:"save_intermediate" yaml:"save_intermediate" mapstructure:"save_intermediate"`

	// Workers bounds concurrent documents in batch mode (default 1).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultPipelineConfig returns the settings used when nothing is configured.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Paths: PathsConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			ExportDir:    "data/exported",
			TempDir:      "temp_pipeline",
		},
		Conversion: ConversionConfig{
			Backend:   BackendMarker,
			Device:    DeviceCPU,
			Timeout:   10 * time.Minute,
			MarkerBin: "marker_single",
			Image:     "marker-pdf:latest",
		},
		Chunking: ChunkingConfig{
			MinTokens: 150,
			MaxTokens: 400,
		},
		Audit: AuditConfig{
			DuplicateThreshold: 0.85,
			MergeTolerance:     0.10,
			MinChars:           20,
		},
		Tagging: TaggingConfig{
			MaxTags: 10,
		},
		Index: IndexConfig{
			Dir:        "data/index",
			MaxResults: 20,
		},
		Workers: 1,
	}
}

// Validate reports the first setting that would make a stage misbehave.
func (c PipelineConfig) Validate() error {
	if c.Chunking.MinTokens <= 0 {
		return fmt.Errorf("min-tokens must be positive, got %d", c.Chunking.MinTokens)
	}
	if c.Chunking.MaxTokens < c.Chunking.MinTokens {
		return fmt.Errorf("max-tokens (%d) must be >= min-tokens (%d)", c.Chunking.MaxTokens, c.Chunking.MinTokens)
	}
	if c.Audit.DuplicateThreshold <= 0 || c.Audit.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate-threshold must be in (0, 1], got %g", c.Audit.DuplicateThreshold)
	}
	if c.Audit.MergeTolerance < 0 {
		return fmt.Errorf("merge tolerance must not be negative, got %g", c.Audit.MergeTolerance)
	}
	if _, err := ParseDevice(string(c.Conversion.Device)); err != nil {
		return err
	}
	switch c.Conversion.Backend {
	case BackendMarker, BackendMarkerContainer, BackendPDFText:
	default:
		return fmt.Errorf("unsupported backend %q: use marker, marker-container, or pdftext", c.Conversion.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
