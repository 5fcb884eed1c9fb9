// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk partitions normalized Markdown into ordered nodes sized
// between a minimum and maximum token estimate. Headings start new nodes,
// paragraphs are packed greedily and split only at sentence boundaries,
// lists only between items.
package chunk

import (
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/ragprep/internal/tokens"
	"github.com/pdiddy/ragprep/pkg/types"
)

// Chunker packs structural units into nodes.
type Chunker struct {
	minTokens int
	maxTokens int
}

// New validates cfg and returns a Chunker.
func New(cfg types.ChunkingConfig) (*Chunker, error) {
	if cfg.MinTokens <= 0 {
		return nil, fmt.Errorf("min_tokens must be positive, got %d", cfg.MinTokens)
	}
	if cfg.MaxTokens < cfg.MinTokens {
		return nil, fmt.Errorf("max_tokens (%d) must be >= min_tokens (%d)", cfg.MaxTokens, cfg.MinTokens)
	}
	return &Chunker{minTokens: cfg.MinTokens, maxTokens: cfg.MaxTokens}, nil
}

// Chunk is a convenience wrapper around New and Chunker.Chunk.
func Chunk(docID, text string, minTokens, maxTokens int) ([]types.Node, types.ChunkingStats, error) {
	c, err := New(types.ChunkingConfig{MinTokens: minTokens, MaxTokens: maxTokens})
	if err != nil {
		return nil, types.ChunkingStats{}, err
	}
	nodes, stats := c.Chunk(docID, text)
	return nodes, stats, nil
}

// Chunk splits text into nodes. Content of every node is an exact span of
// text, so the nodes in order cover the input up to whitespace between
// them. Empty input yields no nodes and EmptyInput set in the stats.
func (c *Chunker) Chunk(docID, text string) ([]types.Node, types.ChunkingStats) {
	src := []byte(text)
	units := parseUnits(src)
	if len(units) == 0 {
		return nil, types.ChunkingStats{EmptyInput: true}
	}

	p := &packer{
		src:   src,
		docID: docID,
		min:   c.minTokens,
		max:   c.maxTokens,
	}
	for _, u := range units {
		switch u.kind {
		case kindHeading:
			p.addHeading(u)
		case kindProse:
			p.addProse(u)
		default:
			p.addAtomic(u)
		}
	}
	p.close()

	return p.nodes, statsFor(p.nodes, c.maxTokens)
}

// packer holds the node under construction. An open buffer is always the
// contiguous source range [start, end).
type packer struct {
	src   []byte
	docID string
	min   int
	max   int

	nodes   []types.Node
	section string

	open    bool
	start   int
	end     int
	words   int
	hasBody bool
}

func (p *packer) bufTokens() int { return tokens.FromWords(p.words) }

func (p *packer) fits(words int) bool { return tokens.FromWords(p.words+words) <= p.max }

func (p *packer) full() bool { return p.bufTokens() >= p.min }

func (p *packer) appendSpan(start, end, words int, body bool) {
	if !p.open {
		p.open = true
		p.start = start
	}
	p.end = end
	p.words += words
	p.hasBody = p.hasBody || body
}

func (p *packer) addHeading(u unit) {
	if p.hasBody {
		p.close()
	}
	p.appendSpan(u.start, u.end, u.words, false)
	p.section = u.heading
}

func (p *packer) addAtomic(u unit) {
	if p.fits(u.words) {
		p.appendSpan(u.start, u.end, u.words, true)
		return
	}
	if p.full() {
		p.close()
		p.appendSpan(u.start, u.end, u.words, true)
		return
	}
	// Under the minimum: an oversized node beats an undersized one.
	p.appendSpan(u.start, u.end, u.words, true)
	p.close()
}

func (p *packer) addProse(u unit) {
	if p.fits(u.words) {
		p.appendSpan(u.start, u.end, u.words, true)
		return
	}
	if p.full() {
		p.close()
		if p.fits(u.words) {
			p.appendSpan(u.start, u.end, u.words, true)
			return
		}
	}
	for _, s := range p.pieces(u) {
		p.addSentence(s)
	}
}

// pieces splits a unit too large for the buffer. Lists split between their
// items and other prose at sentence boundaries. An item that alone exceeds
// the maximum is split at its sentences.
func (p *packer) pieces(u unit) []span {
	if len(u.items) == 0 {
		return splitSentences(p.src, u.start, u.end)
	}
	var out []span
	for i, s := range u.items {
		e := u.end
		if i+1 < len(u.items) {
			e = u.items[i+1]
		}
		item := newSpan(p.src, s, e)
		if tokens.FromWords(item.words) > p.max {
			out = append(out, splitSentences(p.src, item.start, item.end)...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func (p *packer) addSentence(s span) {
	switch {
	case p.fits(s.words):
		p.appendSpan(s.start, s.end, s.words, true)
	case tokens.FromWords(s.words) > p.max:
		// An over-long sentence is kept whole in a node of its own,
		// together with any headings that introduce it.
		if p.hasBody {
			p.close()
		}
		p.appendSpan(s.start, s.end, s.words, true)
		p.close()
	case p.full():
		p.close()
		p.appendSpan(s.start, s.end, s.words, true)
	default:
		p.appendSpan(s.start, s.end, s.words, true)
		p.close()
	}
}

// close emits the buffer as a node and resets it.
func (p *packer) close() {
	if !p.open {
		return
	}
	content := strings.TrimSpace(string(p.src[p.start:p.end]))
	if content != "" {
		idx := len(p.nodes)
		est := tokens.Estimate(content)
		p.nodes = append(p.nodes, types.Node{
			ID:            types.NodeID(p.docID, idx),
			Content:       content,
			Section:       p.section,
			TokenEstimate: est,
			SourceOrder:   idx,
			HeadingOnly:   !p.hasBody,
			Metadata: types.NodeMetadata{
				DocID:         p.docID,
				NodeIndex:     idx,
				TokenEstimate: est,
			},
		})
	}
	p.open, p.words, p.hasBody = false, 0, false
}

func statsFor(nodes []types.Node, maxTokens int) types.ChunkingStats {
	stats := types.ChunkingStats{TotalNodes: len(nodes)}
	if len(nodes) == 0 {
		stats.EmptyInput = true
		return stats
	}
	stats.MinTokens = math.MaxInt
	sum := 0
	for _, n := range nodes {
		sum += n.TokenEstimate
		stats.MinTokens = min(stats.MinTokens, n.TokenEstimate)
		stats.MaxTokens = max(stats.MaxTokens, n.TokenEstimate)
		if n.TokenEstimate > maxTokens {
			stats.OversizedNodes++
		}
	}
	stats.AvgTokens = math.Round(float64(sum)/float64(len(nodes))*10) / 10
	return stats
}
