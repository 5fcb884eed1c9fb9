// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tag assigns a domain and topic tags to nodes by keyword lookup
// against a static taxonomy.
package tag

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pdiddy/ragprep/pkg/types"
)

// Scoring weights.
const (
	// minContentMatches is the occurrences a tag needs in node content.
	minContentMatches = 2
	// sectionBonus is added for a tag found in the node's heading.
	sectionBonus = 5
	// filenameBonus is added for a tag found in the source filename.
	filenameBonus = 3
)

// Tagger scores nodes against a Taxonomy.
type Tagger struct {
	taxonomy Taxonomy
	domains  *matcher
	tags     *matcher
	maxTags  int
}

// New builds a Tagger. maxTags <= 0 uses the default of 10.
func New(t Taxonomy, maxTags int) *Tagger {
	if maxTags <= 0 {
		maxTags = types.DefaultPipelineConfig().Tagging.MaxTags
	}
	return &Tagger{
		taxonomy: t,
		domains:  newMatcher(t.Domains),
		tags:     newMatcher(t.Tags),
		maxTags:  maxTags,
	}
}

// Tag returns tagged copies of nodes and document-level statistics.
// sourceFile contributes filename keywords to every node.
func (tg *Tagger) Tag(nodes []types.Node, sourceFile string) ([]types.Node, types.TaggingStats) {
	name := filenameText(sourceFile)
	fileTags := tg.tags.count(name)
	fileDomains := tg.domains.count(name)

	out := make([]types.Node, len(nodes))
	tagSet := make(map[string]bool)
	domainSet := make(map[string]bool)
	for i, n := range nodes {
		n.Metadata.Tags = tg.nodeTags(n, fileTags)
		n.Metadata.Domain = tg.domain(n.Content, fileDomains)
		out[i] = n
		for _, t := range n.Metadata.Tags {
			tagSet[t] = true
		}
		domainSet[n.Metadata.Domain] = true
	}

	stats := types.TaggingStats{
		UniqueTags:      sortedKeys(tagSet),
		DetectedDomains: sortedKeys(domainSet),
	}
	stats.TotalUniqueTags = len(stats.UniqueTags)
	return out, stats
}

// Tags returns the tags for content with its section heading, ignoring any
// filename.
func (tg *Tagger) Tags(content, section string) []string {
	return tg.nodeTags(types.Node{Content: content, Section: section}, nil)
}

// Domain returns the primary domain of content.
func (tg *Tagger) Domain(content string) string {
	return tg.domain(content, nil)
}

func (tg *Tagger) nodeTags(n types.Node, fileTags map[int]int) []string {
	scores := make(map[int]int)

	for rank, idx := range ranked(tg.tags.count(n.Content), minContentMatches) {
		scores[idx] += 10 - min(rank, 9)
	}
	if n.Section != "" {
		for idx := range tg.tags.count(n.Section) {
			scores[idx] += sectionBonus
		}
	}
	for idx := range fileTags {
		scores[idx] += filenameBonus
	}

	best := ranked(scores, 1)
	if len(best) > tg.maxTags {
		best = best[:tg.maxTags]
	}
	names := make([]string, len(best))
	for i, idx := range best {
		names[i] = tg.taxonomy.Tags[idx].Name
	}
	return names
}

func (tg *Tagger) domain(content string, fileDomains map[int]int) string {
	counts := tg.domains.count(content)
	for idx, n := range fileDomains {
		counts[idx] += n
	}
	if best := ranked(counts, 1); len(best) > 0 {
		return tg.taxonomy.Domains[best[0]].Name
	}
	return types.DefaultDomain
}

// ranked returns category indices with at least minCount, highest count
// first and table order on ties.
func ranked(counts map[int]int, minCount int) []int {
	idx := make([]int, 0, len(counts))
	for i, n := range counts {
		if n >= minCount {
			idx = append(idx, i)
		}
	}
	slices.SortFunc(idx, func(a, b int) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return idx
}

// filenameText turns "Bao_cao-tai_chinh.pdf" into "Bao cao tai chinh".
func filenameText(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

// sortedKeys returns the keys of set in Vietnamese collation order. A
// Collator keeps sort buffers, so each call builds its own.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	collate.New(language.Vietnamese).SortStrings(keys)
	return keys
}
