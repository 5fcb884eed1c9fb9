// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/ragprep/pkg/types"
)

// Format is a review export layout.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatDetailed Format = "detailed"
	FormatTraining Format = "training"
	FormatMarkdown Format = "markdown"
	FormatJSONL    Format = "jsonl"
)

// ErrUnknownFormat is returned for an unrecognized export format name.
var ErrUnknownFormat = errors.New("unknown export format")

// ReviewFormats are written by the pipeline after every document.
var ReviewFormats = []Format{FormatPlain, FormatDetailed, FormatTraining}

// AllFormats lists every format in output order.
var AllFormats = []Format{FormatPlain, FormatDetailed, FormatTraining, FormatMarkdown, FormatJSONL}

// ParseFormat accepts a format name or "all".
func ParseFormat(s string) ([]Format, error) {
	if s == "all" {
		return AllFormats, nil
	}
	for _, f := range AllFormats {
		if string(f) == s {
			return []Format{f}, nil
		}
	}
	return nil, fmt.Errorf("%w %q: use plain, detailed, training, markdown, jsonl, or all", ErrUnknownFormat, s)
}

// Suffix returns the file name suffix for f.
func (f Format) Suffix() string {
	switch f {
	case FormatDetailed:
		return "_detailed.txt"
	case FormatTraining:
		return "_training.txt"
	case FormatMarkdown:
		return "_review.md"
	case FormatJSONL:
		return "_training.jsonl"
	}
	return "_plain.txt"
}

// WriteText renders out in format f to <dir>/<doc_id><suffix>.
func WriteText(dir string, out *types.Output, f Format, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, out, f, now); err != nil {
		return "", err
	}
	path := filepath.Join(dir, out.DocID+f.Suffix())
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// Render writes out in format f. now stamps formats that record an export
// time.
func Render(w io.Writer, out *types.Output, f Format, now time.Time) error {
	bw := bufio.NewWriter(w)
	var err error
	switch f {
	case FormatPlain:
		renderPlain(bw, out)
	case FormatDetailed:
		renderDetailed(bw, out)
	case FormatTraining:
		renderTraining(bw, out, now)
	case FormatMarkdown:
		renderMarkdown(bw, out)
	case FormatJSONL:
		err = renderJSONL(bw, out)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

const (
	ruleWide   = 80
	ruleNarrow = 40
	boxInner   = 78
	boxText    = 76
)

func renderPlain(w io.Writer, out *types.Output) {
	fmt.Fprintf(w, "# Document: %s\n", out.DocID)
	fmt.Fprintf(w, "# Nodes: %d\n", len(out.Nodes))
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", ruleWide))
	for _, n := range out.Nodes {
		if n.Section != "" {
			fmt.Fprintf(w, "[%s]\n\n", n.Section)
		}
		fmt.Fprintf(w, "%s\n\n%s\n\n", n.Content, strings.Repeat("-", ruleNarrow))
	}
}

func renderDetailed(w io.Writer, out *types.Output) {
	info := out.ProcessingInfo
	wide := strings.Repeat("=", ruleWide)
	bar := strings.Repeat("─", boxInner)

	fmt.Fprintf(w, "%s\nDOCUMENT EXPORT - DETAILED VIEW\n%s\n\n", wide, wide)
	fmt.Fprintf(w, "Document ID    : %s\n", out.DocID)
	fmt.Fprintf(w, "Source File    : %s\n", orNA(info.SourceFile))
	fmt.Fprintf(w, "Processed At   : %s\n", formatTime(info.ProcessedAt))
	fmt.Fprintf(w, "Total Nodes    : %d\n", len(out.Nodes))
	fmt.Fprintf(w, "Unique Tags    : %d\n", info.TaggingStats.TotalUniqueTags)
	if len(info.TaggingStats.DetectedDomains) > 0 {
		fmt.Fprintf(w, "Domains        : %s\n", strings.Join(info.TaggingStats.DetectedDomains, ", "))
	}
	fmt.Fprintf(w, "\n%s\n\n", wide)

	for i, n := range out.Nodes {
		fmt.Fprintf(w, "┌%s┐\n│ NODE %d: %s\n├%s┤\n", bar, i+1, n.ID, bar)
		if n.Section != "" {
			fmt.Fprintf(w, "│ Section : %s\n", n.Section)
		}
		if n.Metadata.Domain != "" {
			fmt.Fprintf(w, "│ Domain  : %s\n", n.Metadata.Domain)
		}
		if len(n.Metadata.Tags) > 0 {
			fmt.Fprintf(w, "│ Tags    : %s\n", strings.Join(n.Metadata.Tags, ", "))
		}
		fmt.Fprintf(w, "│ Tokens  : ~%d\n", n.Metadata.TokenEstimate)
		fmt.Fprintf(w, "├%s┤\n│ CONTENT:\n│\n", bar)
		for _, line := range strings.Split(n.Content, "\n") {
			fmt.Fprintf(w, "│ %s\n", truncateRunes(line, boxText))
		}
		fmt.Fprintf(w, "└%s┘\n\n", bar)
	}
}

func renderTraining(w io.Writer, out *types.Output, now time.Time) {
	fmt.Fprintf(w, "# Training Data Export\n")
	fmt.Fprintf(w, "# Document: %s\n", out.DocID)
	fmt.Fprintf(w, "# Source: %s\n", orNA(out.ProcessingInfo.SourceFile))
	fmt.Fprintf(w, "# Nodes: %d\n", len(out.Nodes))
	fmt.Fprintf(w, "# Export Date: %s\n", formatTime(now))
	fmt.Fprintf(w, "#\n# Format: Each <TEXT> block is a training sample\n")
	fmt.Fprintf(w, "#%s\n\n", strings.Repeat("=", ruleWide-3))

	for i, n := range out.Nodes {
		fmt.Fprintf(w, "# --- Sample %d ---\n", i+1)
		if n.Metadata.Domain != "" {
			fmt.Fprintf(w, "# Domain: %s\n", n.Metadata.Domain)
		}
		if len(n.Metadata.Tags) > 0 {
			fmt.Fprintf(w, "# Tags: %s\n", strings.Join(n.Metadata.Tags, ", "))
		}
		if n.Section != "" {
			fmt.Fprintf(w, "# Section: %s\n", n.Section)
		}
		fmt.Fprintf(w, "<TEXT>\n%s\n</TEXT>\n\n", strings.TrimSpace(n.Content))
	}
}

func renderMarkdown(w io.Writer, out *types.Output) {
	info := out.ProcessingInfo
	stats := info.TaggingStats

	fmt.Fprintf(w, "# %s\n\n## Document Info\n\n", out.DocID)
	fmt.Fprintf(w, "| Property | Value |\n|----------|-------|\n")
	fmt.Fprintf(w, "| Source File | `%s` |\n", orNA(info.SourceFile))
	fmt.Fprintf(w, "| Total Nodes | %d |\n", len(out.Nodes))
	fmt.Fprintf(w, "| Processed At | %s |\n", formatTime(info.ProcessedAt))
	if len(stats.DetectedDomains) > 0 {
		fmt.Fprintf(w, "| Domains | %s |\n", strings.Join(stats.DetectedDomains, ", "))
	}
	fmt.Fprintf(w, "| Unique Tags | %d |\n\n", stats.TotalUniqueTags)

	if len(stats.UniqueTags) > 0 {
		fmt.Fprintf(w, "## Tags\n\n")
		for _, t := range stats.UniqueTags {
			fmt.Fprintf(w, "- %s\n", t)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "## Content\n\n")
	current := ""
	for i, n := range out.Nodes {
		if n.Section != "" && n.Section != current {
			fmt.Fprintf(w, "### %s\n\n", n.Section)
			current = n.Section
		}
		fmt.Fprintf(w, "**Node %d**\n", i+1)
		if n.Metadata.Domain != "" {
			fmt.Fprintf(w, "- Domain: `%s`\n", n.Metadata.Domain)
		}
		if len(n.Metadata.Tags) > 0 {
			quoted := make([]string, len(n.Metadata.Tags))
			for j, t := range n.Metadata.Tags {
				quoted[j] = "`" + t + "`"
			}
			fmt.Fprintf(w, "- Tags: %s\n", strings.Join(quoted, ", "))
		}
		fmt.Fprintf(w, "\n> %s\n\n---\n\n", strings.ReplaceAll(n.Content, "\n", "\n> "))
	}
}

// trainingSample is one line of the JSONL export.
type trainingSample struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Section string   `json:"section"`
	Domain  string   `json:"domain"`
	Tags    []string `json:"tags"`
	Source  string   `json:"source"`
	DocID   string   `json:"doc_id"`
}

func renderJSONL(w io.Writer, out *types.Output) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, n := range out.Nodes {
		tags := n.Metadata.Tags
		if tags == nil {
			tags = []string{}
		}
		err := enc.Encode(trainingSample{
			ID:      n.ID,
			Text:    n.Content,
			Section: n.Section,
			Domain:  n.Metadata.Domain,
			Tags:    tags,
			Source:  out.ProcessingInfo.SourceFile,
			DocID:   out.DocID,
		})
		if err != nil {
			return fmt.Errorf("encoding %s: %w", n.ID, err)
		}
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
