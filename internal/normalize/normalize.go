// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize repairs Vietnamese text after cleaning: Unicode
// composition, words broken across lines, OCR character confusions,
// punctuation variants and spacing. Wording is never changed.
package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/unicode/norm"
)

//go:embed ocr_table.yaml
var defaultTableYAML []byte

// Rule is one OCR substitution.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Table is an ordered list of OCR substitutions.
type Table struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultTable returns the built-in OCR substitution table.
func DefaultTable() Table {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("normalize: built-in OCR table: %v", err))
	}
	return t
}

// ParseTable decodes a YAML substitution table.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parsing OCR table: %w", err)
	}
	return t, nil
}

// LoadTable reads a YAML substitution table from path.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading OCR table %s: %w", path, err)
	}
	return ParseTable(data)
}

type compiledRule struct {
	re      *regexp.Regexp
	replace string
}

// Normalizer applies the normalization steps with a compiled Table.
type Normalizer struct {
	rules []compiledRule
}

// New compiles t. An invalid pattern is reported with its rule name.
func New(t Table) (*Normalizer, error) {
	n := &Normalizer{rules: make([]compiledRule, 0, len(t.Rules))}
	for i, r := range t.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("compiling OCR rule %s: %w", name, err)
		}
		n.rules = append(n.rules, compiledRule{re: re, replace: r.Replace})
	}
	return n, nil
}

var defaultNormalizer = mustNew(DefaultTable())

func mustNew(t Table) *Normalizer {
	n, err := New(t)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize normalizes text with the built-in table.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

var (
	reNumbered     = regexp.MustCompile(`^\s*\d+\.`)
	reDots         = regexp.MustCompile(`\.{2,}`)
	reBangs        = regexp.MustCompile(`!{2,}`)
	reQuestions    = regexp.MustCompile(`\?{2,}`)
	reInnerSpaces  = regexp.MustCompile(` {2,}`)
	reSpaceBefore  = regexp.MustCompile(`([^\s\-*•#])[ \t]+([.,!?;:])`)
	reMissingSpace = regexp.MustCompile(`([,;:!?])(\p{L})`)
	reNewlines     = regexp.MustCompile(`\n{3,}`)

	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
		"–", "-", "—", "-",
	)
)

// Normalize returns text in NFC form with broken lines rejoined, the OCR
// table applied, punctuation unified and spacing normalized.
func (n *Normalizer) Normalize(text string) string {
	text = norm.NFC.String(text)
	text = repairLineBreaks(text)
	for _, r := range n.rules {
		text = r.re.ReplaceAllString(text, r.replace)
	}
	text = normalizePunctuation(text)
	return normalizeSpacing(text)
}

// repairLineBreaks joins lines split mid-word or mid-sentence by PDF
// layout. Headings, list items, blank lines and fenced code are kept.
func repairLineBreaks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || isStructural(line) {
			out = append(out, line)
			continue
		}
		for i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next == "" || isStructural(lines[i+1]) {
				break
			}
			joined, ok := joinLines(line, next)
			if !ok {
				break
			}
			line = joined
			i++
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isStructural(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" ||
		strings.HasPrefix(s, "#") ||
		strings.HasPrefix(s, "-") ||
		strings.HasPrefix(s, "```") ||
		reNumbered.MatchString(line)
}

// joinLines reports whether next continues line and returns the joined text.
func joinLines(line, next string) (string, bool) {
	cur := strings.TrimRight(line, " \t")
	first, _ := utf8.DecodeRuneInString(next)

	if strings.HasSuffix(cur, "-") {
		if unicode.IsLetter(first) {
			return strings.TrimSuffix(cur, "-") + next, true
		}
		return "", false
	}

	last, _ := utf8.DecodeLastRuneInString(cur)
	if strings.ContainsRune(".!?:;,", last) {
		return "", false
	}
	if unicode.IsLower(first) {
		return cur + " " + next, true
	}
	return "", false
}

func normalizePunctuation(text string) string {
	text = quoteReplacer.Replace(text)
	text = reDots.ReplaceAllStringFunc(text, func(m string) string {
		if len(m) >= 3 {
			return "..."
		}
		return "."
	})
	text = reBangs.ReplaceAllString(text, "!")
	return reQuestions.ReplaceAllString(text, "?")
}

func normalizeSpacing(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		body := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(body)]
		body = reInnerSpaces.ReplaceAllString(body, " ")
		body = reSpaceBefore.ReplaceAllString(body, "$1$2")
		body = reMissingSpace.ReplaceAllString(body, "$1 $2")
		body = strings.TrimRight(body, " \t")
		if body == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + body
	}
	text = strings.Join(lines, "\n")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
