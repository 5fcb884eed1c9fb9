// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// reTerminal matches terminal punctuation, optional closing quotes or
// brackets, and the whitespace after them.
var reTerminal = regexp.MustCompile(`[.!?…]+["'”’)\]»]*\s+`)

// reOrdinal matches list and section numbers such as "1" or "2.3". Four
// digit numbers are left out since a year often ends a sentence.
var reOrdinal = regexp.MustCompile(`^(\d{1,3}\.)*\d{1,3}$`)

const openers = `"'“‘([«`

type span struct {
	start int
	end   int
	words int
}

// splitSentences returns the sentence spans of src[start:end] as absolute
// offsets. A boundary is terminal punctuation followed by whitespace and an
// uppercase letter, optionally behind an opening quote or bracket. The
// final sentence runs to the end of the range. Punctuation after a bare
// number, as in "Chương 1. Giới thiệu", is not a boundary.
func splitSentences(src []byte, start, end int) []span {
	seg := src[start:end]
	var spans []span
	cur := 0
	for _, m := range reTerminal.FindAllIndex(seg, -1) {
		if !startsSentence(seg[m[1]:]) || ordinalBefore(seg, m[0]) {
			continue
		}
		stop := m[0] + len(strings.TrimRightFunc(string(seg[m[0]:m[1]]), unicode.IsSpace))
		if stop <= cur {
			continue
		}
		spans = append(spans, newSpan(src, start+cur, start+stop))
		cur = m[1]
	}
	if cur < len(seg) {
		spans = append(spans, newSpan(src, start+cur, end))
	}
	return spans
}

func startsSentence(rest []byte) bool {
	r, size := utf8.DecodeRune(rest)
	if r == utf8.RuneError && size <= 1 {
		return false
	}
	if strings.ContainsRune(openers, r) {
		r, _ = utf8.DecodeRune(rest[size:])
	}
	return unicode.IsUpper(r)
}

// ordinalBefore reports whether the word ending at seg[i] is a number.
func ordinalBefore(seg []byte, i int) bool {
	j := i
	for j > 0 && !isSpace(seg[j-1]) {
		j--
	}
	return reOrdinal.Match(seg[j:i])
}

func newSpan(src []byte, s, e int) span {
	s, e = trimSpan(src, s, e)
	return span{start: s, end: e, words: len(strings.Fields(string(src[s:e])))}
}
