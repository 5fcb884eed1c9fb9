// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package audit

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type wordSet map[string]struct{}

// newWordSet lowercases text in NFC form and collects its words with
// punctuation stripped.
func newWordSet(text string) wordSet {
	text = strings.ToLower(norm.NFC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(wordSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// similarity returns the Jaccard index of two word sets. Two empty sets
// are not considered similar.
func similarity(a, b wordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// maxSimilarity is the highest Jaccard index two sets of these sizes can
// reach: |A∩B| <= min and |A∪B| >= max.
func maxSimilarity(a, b wordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return float64(min(len(a), len(b))) / float64(max(len(a), len(b)))
}

// TextSimilarity returns the Jaccard index of the word sets of a and b.
func TextSimilarity(a, b string) float64 {
	return similarity(newWordSet(a), newWordSet(b))
}
