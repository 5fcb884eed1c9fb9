// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tag

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type keyword struct {
	text string
	cats []int
}

// matcher counts keyword occurrences per category. Keywords are bucketed
// by their first rune and tried longest first, so a span claimed by a
// longer keyword is not counted again by a shorter one.
type matcher struct {
	buckets map[rune][]keyword
}

func newMatcher(cats []Category) *matcher {
	byText := make(map[string][]int)
	var order []string
	for i, c := range cats {
		for _, kw := range c.Keywords {
			k := fold(kw)
			if k == "" {
				continue
			}
			if _, ok := byText[k]; !ok {
				order = append(order, k)
			}
			if !slices.Contains(byText[k], i) {
				byText[k] = append(byText[k], i)
			}
		}
	}

	m := &matcher{buckets: make(map[rune][]keyword)}
	for _, k := range order {
		r, _ := utf8.DecodeRuneInString(k)
		m.buckets[r] = append(m.buckets[r], keyword{text: k, cats: byText[k]})
	}
	for r := range m.buckets {
		slices.SortStableFunc(m.buckets[r], func(a, b keyword) int {
			return len(b.text) - len(a.text)
		})
	}
	return m
}

// count returns occurrences per category index for text.
func (m *matcher) count(text string) map[int]int {
	s := fold(text)
	counts := make(map[int]int)
	atBoundary := true
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if atBoundary {
			if kw, ok := m.matchAt(s, i, r); ok {
				for _, c := range kw.cats {
					counts[c]++
				}
				i += len(kw.text)
				last, _ := utf8.DecodeLastRuneInString(kw.text)
				atBoundary = !isWordRune(last)
				continue
			}
		}
		atBoundary = !isWordRune(r)
		i += size
	}
	return counts
}

// matchAt returns the longest keyword at s[i:] that ends on a word boundary.
func (m *matcher) matchAt(s string, i int, first rune) (keyword, bool) {
	for _, kw := range m.buckets[first] {
		if !strings.HasPrefix(s[i:], kw.text) {
			continue
		}
		if end := i + len(kw.text); end < len(s) {
			next, _ := utf8.DecodeRuneInString(s[end:])
			if isWordRune(next) {
				continue
			}
		}
		return kw, true
	}
	return keyword{}, false
}

// fold lowercases text in NFC form and collapses whitespace.
func fold(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(text))), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
