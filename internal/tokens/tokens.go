// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tokens estimates token counts from whitespace-separated words.
// Every stage that measures node size uses Estimate so bounds agree.
package tokens

import "strings"

// Tokens per whitespace word, in hundredths, for mixed Vietnamese and
// English text. Integer math keeps the estimate exact.
const wordFactorPercent = 133

// Estimate returns ceil(words * 1.33). Empty or whitespace-only text is 0.
func Estimate(text string) int {
	return FromWords(len(strings.Fields(text)))
}

// FromWords converts a word count to a token estimate.
func FromWords(words int) int {
	if words <= 0 {
		return 0
	}
	return (words*wordFactorPercent + 99) / 100
}
