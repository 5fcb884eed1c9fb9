// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clean removes conversion artifacts from Markdown: page markers,
// page numbers, repeated running headers and footers, OCR spacing errors
// and inconsistent list or heading syntax. It never rewrites wording.
package clean

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/ragprep/pkg/types"
)

// Rules tunes running header and footer detection. Only the first and last
// content line of each page, as delimited by page markers, is considered.
type Rules struct {
	// RepeatThreshold is how many pages a normalized edge line must open or
	// close to be treated as a running header or footer.
	RepeatThreshold int

	// RepeatMinRunes is the minimum length of a removable edge line.
	// Short lines repeat naturally and are kept.
	RepeatMinRunes int

	// RepeatMaxRunes is the maximum length of a removable edge line.
	// Anything longer is body text that happens to sit at a page break.
	RepeatMaxRunes int
}

// DefaultRules returns the rules used by Clean.
func DefaultRules() Rules {
	return Rules{RepeatThreshold: 2, RepeatMinRunes: 50, RepeatMaxRunes: 200}
}

var (
	reMarkerPage  = regexp.MustCompile(`^[ \t]*\{\d+\}-{3,}[ \t]*$`)
	reCommentPage = regexp.MustCompile(`(?i)^[ \t]*<!--\s*page\s+\d+\s*-->[ \t]*$`)

	rePageNumber    = regexp.MustCompile(`^[\d\-–—]+$`)
	rePageIndicator = regexp.MustCompile(`(?i)^(page|trang|p\.?|tr\.?)\s*\d+(\s*(/|of|trên)\s*\d+)?$`)
	reDivider       = regexp.MustCompile(`^[\-_=~]{3,}$`)

	reSpacesAfterStop = regexp.MustCompile(`([.!?])[ \t]{2,}`)
	reSpaceBeforePunc = regexp.MustCompile(`([^\s\-*•#])[ \t]+([.!?,;:])`)

	reHeading  = regexp.MustCompile(`^(#{1,6})[ \t]+(.+)$`)
	reBullet   = regexp.MustCompile(`^([ \t]*)[-*•][ \t]+(.*)$`)
	reNumbered = regexp.MustCompile(`^([ \t]*)(\d+)[.)][ \t]+(.*)$`)
	reInnerWS  = regexp.MustCompile(`[ \t]{2,}`)
	reNewlines = regexp.MustCompile(`\n{4,}`)
)

// Cleaner applies the cleaning steps with a fixed set of Rules.
type Cleaner struct {
	rules Rules
}

// New creates a Cleaner. Zero-valued rule fields fall back to defaults.
func New(r Rules) *Cleaner {
	def := DefaultRules()
	if r.RepeatThreshold <= 0 {
		r.RepeatThreshold = def.RepeatThreshold
	}
	if r.RepeatMinRunes <= 0 {
		r.RepeatMinRunes = def.RepeatMinRunes
	}
	if r.RepeatMaxRunes <= 0 {
		r.RepeatMaxRunes = def.RepeatMaxRunes
	}
	return &Cleaner{rules: r}
}

// Clean cleans markdown with the default rules.
func Clean(markdown string) (string, types.CleaningStats) {
	return New(DefaultRules()).Clean(markdown)
}

// Clean returns the cleaned text and counts of what was removed. Lines
// inside fenced code blocks are kept verbatim apart from line endings.
func (c *Cleaner) Clean(markdown string) (string, types.CleaningStats) {
	stats := types.CleaningStats{InputChars: utf8.RuneCountInString(markdown)}

	text := strings.ReplaceAll(markdown, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	fenced := fenceMask(lines)

	// Running lines are found by page position, so markers stay in place
	// until the edges of every page are known.
	stats.RepeatedLinesRemoved = c.removeRunning(lines, fenced)
	for i, line := range lines {
		if isPageMarker(line) {
			lines[i] = ""
			stats.PageArtifactsRemoved++
		}
	}

	var removed int
	lines, fenced, removed = removePageArtifacts(lines, fenced)
	stats.PageArtifactsRemoved += removed

	for i, line := range lines {
		if fenced[i] {
			continue
		}
		line = fixOCRSpacing(line)
		line = normalizeStructure(line)
		lines[i] = collapseWhitespace(line)
	}

	out := strings.Join(lines, "\n")
	out = reNewlines.ReplaceAllString(out, "\n\n\n")
	out = strings.TrimSpace(out)

	stats.OutputChars = utf8.RuneCountInString(out)
	return out, stats
}

// fenceMask marks lines that belong to a fenced code block, fences included.
func fenceMask(lines []string) []bool {
	mask := make([]bool, len(lines))
	var fence string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			mask[i] = true
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "```"):
			fence = "```"
			mask[i] = true
		case strings.HasPrefix(trimmed, "~~~"):
			fence = "~~~"
			mask[i] = true
		}
	}
	return mask
}

func removePageArtifacts(lines []string, fenced []bool) ([]string, []bool, int) {
	keptLines := lines[:0:0]
	keptMask := fenced[:0:0]
	removed := 0
	for i, line := range lines {
		s := strings.TrimSpace(line)
		if !fenced[i] && s != "" && isPageArtifact(s) {
			removed++
			continue
		}
		keptLines = append(keptLines, line)
		keptMask = append(keptMask, fenced[i])
	}
	return keptLines, keptMask, removed
}

func isPageMarker(line string) bool {
	return reMarkerPage.MatchString(line) || reCommentPage.MatchString(line)
}

func isPageArtifact(s string) bool {
	return rePageNumber.MatchString(s) || rePageIndicator.MatchString(s) || reDivider.MatchString(s)
}

// removeRunning blanks running headers and footers in place and returns how
// many lines it blanked. A running line is the first or last content line
// of at least RepeatThreshold pages. A line repeated anywhere else on a page
// is body text and is kept. Without page markers the document is a single
// page and nothing is removed.
func (c *Cleaner) removeRunning(lines []string, fenced []bool) int {
	type edge struct {
		line int
		key  string
	}
	var edges []edge
	pages := make(map[string]int)

	start := 0
	flush := func(end int) {
		seen := make(map[string]bool, 2)
		for _, i := range pageEdges(lines, fenced, start, end) {
			key := c.runningKey(lines[i])
			if key == "" {
				continue
			}
			edges = append(edges, edge{i, key})
			if !seen[key] {
				seen[key] = true
				pages[key]++
			}
		}
	}
	for i, line := range lines {
		if isPageMarker(line) {
			flush(i)
			start = i + 1
		}
	}
	flush(len(lines))

	removed := 0
	for _, e := range edges {
		if pages[e.key] >= c.rules.RepeatThreshold {
			lines[e.line] = ""
			removed++
		}
	}
	return removed
}

// pageEdges returns the indexes of the first and last content lines in
// lines[start:end]. Blank lines, fenced lines and page numbers are skipped.
func pageEdges(lines []string, fenced []bool, start, end int) []int {
	first, last := -1, -1
	for i := start; i < end; i++ {
		s := strings.TrimSpace(lines[i])
		if fenced[i] || s == "" || isPageArtifact(s) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	switch {
	case first < 0:
		return nil
	case first == last:
		return []int{first}
	default:
		return []int{first, last}
	}
}

// runningKey normalizes an edge line for comparison across pages. It
// returns "" for headings and for lines outside the removable length range.
func (c *Cleaner) runningKey(line string) string {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n < c.rules.RepeatMinRunes || n > c.rules.RepeatMaxRunes {
		return ""
	}
	return strings.ToLower(s)
}

func fixOCRSpacing(line string) string {
	line = reSpacesAfterStop.ReplaceAllString(line, "$1 ")
	return reSpaceBeforePunc.ReplaceAllString(line, "$1$2")
}

// normalizeStructure rewrites headings, bullets and numbered items to one
// canonical syntax.
func normalizeStructure(line string) string {
	if m := reHeading.FindStringSubmatch(line); m != nil {
		content := strings.TrimSpace(strings.ReplaceAll(m[2], "*", ""))
		if content == "" {
			return line
		}
		return m[1] + " " + content
	}
	if m := reBullet.FindStringSubmatch(line); m != nil {
		return m[1] + "- " + m[2]
	}
	if m := reNumbered.FindStringSubmatch(line); m != nil {
		return m[1] + m[2] + ". " + m[3]
	}
	return line
}

// collapseWhitespace keeps leading indentation, collapses inner runs of
// spaces and tabs and trims trailing whitespace.
func collapseWhitespace(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]
	body = reInnerWS.ReplaceAllString(body, " ")
	body = strings.TrimRight(body, " \t")
	if body == "" {
		return ""
	}
	return indent + body
}
