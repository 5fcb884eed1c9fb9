// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/ragprep/pkg/types"
)

const toolPDFText = "pdftext"

// PDFTextConverter extracts the embedded text layer with a pure-Go PDF
// reader. Scanned PDFs without a text layer produce no output. It needs no
// external tools and ignores the device hint.
type PDFTextConverter struct{}

// Convert writes each page's text after a "<!-- page N -->" marker.
func (p *PDFTextConverter) Convert(ctx context.Context, pdfPath string, _ types.Device) (Result, error) {
	fail := func(err error) (Result, error) {
		return Result{}, &ConversionError{Path: pdfPath, Tool: toolPDFText, Err: err}
	}
	if err := checkPDF(pdfPath); err != nil {
		return fail(err)
	}

	start := time.Now()
	md, pages, err := extractText(ctx, pdfPath)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(md) == "" {
		return fail(fmt.Errorf("no text layer in %d pages", pages))
	}
	return Result{
		Markdown: md,
		Pages:    pages,
		Tool:     toolPDFText,
		Duration: time.Since(start),
	}, nil
}

func extractText(ctx context.Context, path string) (text string, pages int, err error) {
	// The reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pages = r.NumPage()
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", 0, fmt.Errorf("reading page %d: %w", i, err)
		}
		fmt.Fprintf(&b, "<!-- page %d -->\n\n", i)
		b.WriteString(pageParagraphs(content))
		b.WriteString("\n\n")
	}
	return b.String(), pages, nil
}

// pageParagraphs trims each line and keeps blank lines as paragraph breaks.
func pageParagraphs(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
