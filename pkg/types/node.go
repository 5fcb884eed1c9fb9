// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// PipelineVersion is recorded in every output file.
const PipelineVersion = "1.1.0"

// DefaultDomain is assigned when no domain keyword matches.
const DefaultDomain = "Khác"

// Node is a contiguous fragment of a document's normalized text. The
// chunker creates nodes; the auditor merges, drops and re-indexes them;
// the tagger fills Metadata.
type Node struct {
	// ID is "<doc_id>_node_<NNNN>", assigned after final ordering.
	ID string `json:"id" yaml:"id"`

	Content string `json:"content" yaml:"content"`

	// Section is the nearest preceding heading text, empty when none.
	Section string `json:"section" yaml:"section"`

	TokenEstimate int `json:"token_estimate" yaml:"token_estimate"`

	// SourceOrder is strictly increasing in document order.
	SourceOrder int `json:"source_order" yaml:"source_order"`

	// HeadingOnly marks nodes that hold headings and no body text.
	HeadingOnly bool `json:"heading_only,omitempty" yaml:"heading_only,omitempty"`

	Metadata NodeMetadata `json:"metadata" yaml:"metadata"`
}

// NodeMetadata is the per-node record consumed by the RAG index.
type NodeMetadata struct {
	DocID         string   `json:"doc_id" yaml:"doc_id"`
	NodeIndex     int      `json:"node_index" yaml:"node_index"`
	TokenEstimate int      `json:"token_estimate" yaml:"token_estimate"`
	Tags          []string `json:"tags" yaml:"tags"`
	Domain        string   `json:"domain" yaml:"domain"`
}

// OutputNode is the serialized form of a node in the processed JSON.
type OutputNode struct {
	ID       string       `json:"id" yaml:"id"`
	Content  string       `json:"content" yaml:"content"`
	Section  string       `json:"section" yaml:"section"`
	Metadata NodeMetadata `json:"metadata" yaml:"metadata"`
}

// Output is the document written to <processed_dir>/<doc_id>_lightrag.json.
type Output struct {
	DocID          string         `json:"doc_id" yaml:"doc_id"`
	Nodes          []OutputNode   `json:"nodes" yaml:"nodes"`
	ProcessingInfo ProcessingInfo `json:"processing_info" yaml:"processing_info"`
}

// ProcessingInfo records provenance and per-stage statistics.
type ProcessingInfo struct {
	SourceFile      string        `json:"source_file" yaml:"source_file"`
	ProcessedAt     time.Time     `json:"processed_at" yaml:"processed_at"`
	PipelineVersion string        `json:"pipeline_version" yaml:"pipeline_version"`
	RunID           string        `json:"run_id" yaml:"run_id"`
	Converter       string        `json:"converter" yaml:"converter"`
	Device          Device        `json:"device" yaml:"device"`
	PageCount       int           `json:"page_count" yaml:"page_count"`
	TotalNodes      int           `json:"total_nodes" yaml:"total_nodes"`
	CleaningStats   CleaningStats `json:"cleaning_stats" yaml:"cleaning_stats"`
	ChunkingStats   ChunkingStats `json:"chunking_stats" yaml:"chunking_stats"`
	AuditStats      AuditStats    `json:"audit_stats" yaml:"audit_stats"`
	TaggingStats    TaggingStats  `json:"tagging_stats" yaml:"tagging_stats"`
}

// CleaningStats summarizes what the cleaner removed.
type CleaningStats struct {
	InputChars           int `json:"input_chars" yaml:"input_chars"`
	OutputChars          int `json:"output_chars" yaml:"output_chars"`
	PageArtifactsRemoved int `json:"page_artifacts_removed" yaml:"page_artifacts_removed"`
	RepeatedLinesRemoved int `json:"repeated_lines_removed" yaml:"repeated_lines_removed"`
	NormalizedCharsDelta int `json:"normalized_chars_delta" yaml:"normalized_chars_delta"`
}

// ChunkingStats summarizes the chunker output.
type ChunkingStats struct {
	TotalNodes     int     `json:"total_nodes" yaml:"total_nodes"`
	MinTokens      int     `json:"min_tokens" yaml:"min_tokens"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	AvgTokens      float64 `json:"avg_tokens" yaml:"avg_tokens"`
	OversizedNodes int     `json:"oversized_nodes" yaml:"oversized_nodes"`
	EmptyInput     bool    `json:"empty_input,omitempty" yaml:"empty_input,omitempty"`
}

// AuditStats counts the auditor's decisions.
type AuditStats struct {
	OriginalCount       int `json:"original_count" yaml:"original_count"`
	DuplicatesRemoved   int `json:"duplicates_removed" yaml:"duplicates_removed"`
	MergesPerformed     int `json:"merges_performed" yaml:"merges_performed"`
	NodesDroppedQuality int `json:"nodes_dropped_quality" yaml:"nodes_dropped_quality"`
	FinalCount          int `json:"final_count" yaml:"final_count"`
}

// TaggingStats summarizes the tags and domains assigned across a document.
type TaggingStats struct {
	TotalUniqueTags int      `json:"total_unique_tags" yaml:"total_unique_tags"`
	UniqueTags      []string `json:"unique_tags" yaml:"unique_tags"`
	DetectedDomains []string `json:"detected_domains" yaml:"detected_domains"`
}

// NodeID formats a node identifier from its document and position.
func NodeID(docID string, index int) string {
	return fmt.Sprintf("%s_node_%04d", docID, index)
}

// ToOutputNodes converts working nodes to their serialized form.
func ToOutputNodes(nodes []Node) []OutputNode {
	out := make([]OutputNode, len(nodes))
	for i, n := range nodes {
		md := n.Metadata
		if md.Tags == nil {
			md.Tags = []string{}
		}
		out[i] = OutputNode{
			ID:       n.ID,
			Content:  n.Content,
			Section:  n.Section,
			Metadata: md,
		}
	}
	return out
}
