// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit repairs a chunked node sequence: it removes near-duplicate
// nodes, merges undersized nodes forward, drops nodes that fail quality
// checks and re-indexes the survivors.
package audit

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/ragprep/internal/tokens"
	"github.com/pdiddy/ragprep/pkg/types"
)

// Quality failure reasons.
const (
	ReasonEmpty       = "empty"
	ReasonTooShort    = "too_short"
	ReasonHeadingOnly = "heading_only"
)

// ValidationWarning records a node dropped by the quality check. It is
// informational and never aborts the run.
type ValidationWarning struct {
	NodeID      string `json:"node_id" yaml:"node_id"`
	SourceOrder int    `json:"source_order" yaml:"source_order"`
	Reason      string `json:"reason" yaml:"reason"`
	Chars       int    `json:"chars" yaml:"chars"`
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("node %s dropped: %s (%d chars)", w.NodeID, w.Reason, w.Chars)
}

// Result is the audited node sequence with its statistics.
type Result struct {
	Nodes    []types.Node
	Stats    types.AuditStats
	Warnings []ValidationWarning
}

// Auditor holds the thresholds for one pipeline run.
type Auditor struct {
	minTokens int
	maxTokens int
	cfg       types.AuditConfig
	log       *slog.Logger
}

// New creates an Auditor. A nil logger discards output.
func New(chunking types.ChunkingConfig, cfg types.AuditConfig, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Auditor{
		minTokens: chunking.MinTokens,
		maxTokens: chunking.MaxTokens,
		cfg:       cfg,
		log:       log,
	}
}

// Audit runs deduplication, forward merge, quality validation and
// re-indexing in that order. The input slice is not modified. Empty input
// yields an empty result with zero stats.
func (a *Auditor) Audit(docID string, nodes []types.Node) Result {
	res := Result{Stats: types.AuditStats{OriginalCount: len(nodes)}}
	if len(nodes) == 0 {
		res.Nodes = []types.Node{}
		return res
	}

	work := make([]types.Node, len(nodes))
	copy(work, nodes)

	work, res.Stats.DuplicatesRemoved = a.dedupe(work)
	work, res.Stats.MergesPerformed = a.merge(work)
	work, res.Warnings = a.validate(work)
	res.Stats.NodesDroppedQuality = len(res.Warnings)

	reindex(docID, work)
	res.Nodes = work
	res.Stats.FinalCount = len(work)

	a.log.Info("audit complete",
		"doc_id", docID,
		"original", res.Stats.OriginalCount,
		"duplicates_removed", res.Stats.DuplicatesRemoved,
		"merges", res.Stats.MergesPerformed,
		"dropped_quality", res.Stats.NodesDroppedQuality,
		"final", res.Stats.FinalCount,
	)
	return res
}

// dedupe keeps the first node of every cluster of near-duplicates. Each
// node is compared against the surviving representatives only.
func (a *Auditor) dedupe(nodes []types.Node) ([]types.Node, int) {
	threshold := a.cfg.DuplicateThreshold
	kept := nodes[:0:0]
	reps := make([]wordSet, 0, len(nodes))
	removed := 0

	for _, n := range nodes {
		set := newWordSet(n.Content)
		dup := -1
		for i, r := range reps {
			if maxSimilarity(set, r) < threshold {
				continue
			}
			if similarity(set, r) >= threshold {
				dup = i
				break
			}
		}
		if dup >= 0 {
			removed++
			a.log.Debug("duplicate node removed", "node", n.ID, "duplicate_of", kept[dup].ID)
			continue
		}
		kept = append(kept, n)
		reps = append(reps, set)
	}
	return kept, removed
}

// merge folds each undersized node into its successor while the merged
// estimate stays within the tolerated maximum.
func (a *Auditor) merge(nodes []types.Node) ([]types.Node, int) {
	limit := int(math.Floor(float64(a.maxTokens)*(1+a.cfg.MergeTolerance) + 1e-9))
	out := make([]types.Node, 0, len(nodes))
	merges := 0

	for i := 0; i < len(nodes); i++ {
		cur := nodes[i]
		for cur.TokenEstimate < a.minTokens && i+1 < len(nodes) {
			next := nodes[i+1]
			content := cur.Content + "\n\n" + next.Content
			est := tokens.Estimate(content)
			if est > limit {
				break
			}
			a.log.Debug("merged undersized node", "node", cur.ID, "into", next.ID, "tokens", est)
			if cur.Section == "" {
				cur.Section = next.Section
			}
			cur.Content = content
			cur.TokenEstimate = est
			cur.HeadingOnly = cur.HeadingOnly && next.HeadingOnly
			merges++
			i++
		}
		out = append(out, cur)
	}
	return out, merges
}

func (a *Auditor) validate(nodes []types.Node) ([]types.Node, []ValidationWarning) {
	kept := nodes[:0:0]
	var warnings []ValidationWarning
	for _, n := range nodes {
		trimmed := strings.TrimSpace(n.Content)
		chars := utf8.RuneCountInString(trimmed)
		reason := ""
		switch {
		case trimmed == "":
			reason = ReasonEmpty
		case chars < a.cfg.MinChars:
			reason = ReasonTooShort
		case n.HeadingOnly:
			reason = ReasonHeadingOnly
		}
		if reason == "" {
			kept = append(kept, n)
			continue
		}
		w := ValidationWarning{NodeID: n.ID, SourceOrder: n.SourceOrder, Reason: reason, Chars: chars}
		a.log.Warn("node failed quality check", "node", n.ID, "reason", reason, "chars", chars)
		warnings = append(warnings, w)
	}
	return kept, warnings
}

// reindex assigns final ids and metadata indices by position.
func reindex(docID string, nodes []types.Node) {
	for i := range nodes {
		n := &nodes[i]
		n.ID = types.NodeID(docID, i)
		n.Metadata.DocID = docID
		n.Metadata.NodeIndex = i
		n.Metadata.TokenEstimate = n.TokenEstimate
	}
}

// Audit audits nodes with the default merge tolerance and character floor.
func Audit(docID string, nodes []types.Node, threshold float64, chunking types.ChunkingConfig) Result {
	cfg := types.DefaultPipelineConfig().Audit
	cfg.DuplicateThreshold = threshold
	return New(chunking, cfg, nil).Audit(docID, nodes)
}
