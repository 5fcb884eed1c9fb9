// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type unitKind int

const (
	kindHeading unitKind = iota
	// kindProse units may be split at sentence boundaries.
	kindProse
	// kindAtomic units (code, HTML) are never split.
	kindAtomic
)

// unit is one top-level Markdown block, addressed by byte offsets into the
// source so that node content is always an exact span of the input.
type unit struct {
	kind    unitKind
	level   int
	heading string
	start   int
	end     int
	words   int
	// items holds the line start of each item of a list unit.
	items []int
}

// parseUnits splits src into top-level CommonMark blocks. Each unit runs
// from the start of its first line to the start of the next located block,
// trimmed of surrounding whitespace. Blocks with no source position
// (thematic breaks, empty fences) stay attached to the preceding unit.
func parseUnits(src []byte) []unit {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type mark struct {
		start int
		node  ast.Node
	}
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		off, ok := blockStart(n, src)
		if !ok {
			continue
		}
		start := lineStart(src, off)
		if len(marks) > 0 && start <= marks[len(marks)-1].start {
			continue
		}
		marks = append(marks, mark{start: start, node: n})
	}
	if len(marks) == 0 {
		return nil
	}
	marks[0].start = 0

	units := make([]unit, 0, len(marks))
	for i, m := range marks {
		end := len(src)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		s, e := trimSpan(src, m.start, end)
		if s == e {
			continue
		}
		u := unit{
			kind:  kindOf(m.node),
			start: s,
			end:   e,
			words: len(strings.Fields(string(src[s:e]))),
		}
		switch n := m.node.(type) {
		case *ast.Heading:
			u.level = n.Level
			u.heading = headingText(n, src)
		case *ast.List:
			u.items = itemStarts(n, src, s, e)
		}
		units = append(units, u)
	}
	return units
}

func kindOf(n ast.Node) unitKind {
	switch n.(type) {
	case *ast.Heading:
		return kindHeading
	case *ast.Paragraph, *ast.TextBlock, *ast.List, *ast.Blockquote:
		return kindProse
	default:
		return kindAtomic
	}
}

// blockStart returns the byte offset of the first source line of block n.
func blockStart(n ast.Node, src []byte) (int, bool) {
	if fence, ok := n.(*ast.FencedCodeBlock); ok {
		if fence.Info != nil {
			return fence.Info.Segment.Start, true
		}
		if fence.Lines().Len() > 0 {
			return previousLine(src, fence.Lines().At(0).Start), true
		}
		return 0, false
	}
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		if off, ok := blockStart(c, src); ok {
			return off, true
		}
	}
	return 0, false
}

// itemStarts returns the line start of each item of list within [s, e).
// The first item is anchored at s so the items cover the whole unit.
func itemStarts(list *ast.List, src []byte, s, e int) []int {
	var starts []int
	for c := list.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.ListItem); !ok {
			continue
		}
		off, ok := blockStart(c, src)
		if !ok {
			continue
		}
		start := max(lineStart(src, off), s)
		if start >= e || (len(starts) > 0 && start <= starts[len(starts)-1]) {
			continue
		}
		starts = append(starts, start)
	}
	if len(starts) > 0 {
		starts[0] = s
	}
	return starts
}

func headingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimSpace(b.String())
}

func lineStart(src []byte, off int) int {
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

func previousLine(src []byte, off int) int {
	start := lineStart(src, off)
	if start == 0 {
		return 0
	}
	return lineStart(src, start-1)
}

func trimSpan(src []byte, s, e int) (int, int) {
	for s < e && isSpace(src[s]) {
		s++
	}
	for e > s && isSpace(src[e-1]) {
		e--
	}
	return s, e
}

func isSpace(b byte) bool {
	return b < 0x80 && unicode.IsSpace(rune(b))
}
