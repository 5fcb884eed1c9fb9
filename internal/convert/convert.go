// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns PDF files into Markdown with pluggable backends.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/ragprep/internal/container"
	"github.com/pdiddy/ragprep/pkg/types"
)

// ErrConversion matches every error returned by a Converter.
var ErrConversion = errors.New("conversion failed")

// ConversionError records which tool failed on which PDF.
type ConversionError struct {
	Path string
	Tool string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s with %s: %v", e.Path, e.Tool, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConversion.
func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// Result is the Markdown produced for one PDF.
type Result struct {
	Markdown string
	// Pages is the number of page markers found, or the page count
	// reported by the backend.
	Pages    int
	Tool     string
	Duration time.Duration
}

// Converter transforms a PDF file into Markdown text. The device hint is
// forwarded to backends that support it and ignored by the rest.
type Converter interface {
	Convert(ctx context.Context, pdfPath string, device types.Device) (Result, error)
}

// New builds the converter selected by cfg.Backend. Scratch files go under
// tempDir.
func New(ctx context.Context, cfg types.ConversionConfig, tempDir string) (Converter, error) {
	switch cfg.Backend {
	case types.BackendMarker, "":
		return NewMarkerConverter(cfg, tempDir), nil
	case types.BackendMarkerContainer:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return NewContainerConverter(ctx, rt, cfg, tempDir)
	case types.BackendPDFText:
		return &PDFTextConverter{}, nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

var (
	reMarkerPage  = regexp.MustCompile(`(?m)^[ \t]*\{\d+\}-{3,}[ \t]*$`)
	reCommentPage = regexp.MustCompile(`(?im)^[ \t]*<!--\s*page\s+\d+\s*-->[ \t]*$`)
)

// CountPages counts the page separators in converted Markdown.
func CountPages(markdown string) int {
	return len(reMarkerPage.FindAllStringIndex(markdown, -1)) +
		len(reCommentPage.FindAllStringIndex(markdown, -1))
}

var pdfMagic = []byte("%PDF-")

// checkPDF rejects missing files, directories and files that do not start
// with a PDF header.
func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return fmt.Errorf("unsupported format: %s is not a PDF", filepath.Base(path))
	}
	return nil
}

// stem returns the file name without directory and extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// readMarkerOutput reads <dir>/<stem>/<stem>.md as written by marker_single.
func readMarkerOutput(dir, pdfPath string) (string, error) {
	s := stem(pdfPath)
	mdPath := filepath.Join(dir, s, s+".md")
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return "", fmt.Errorf("markdown output not found: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("empty output in %s", mdPath)
	}
	return string(data), nil
}

// scratchDir creates a fresh directory under tempDir for one conversion.
func scratchDir(tempDir string) (string, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(tempDir, "convert-*")
}

// deviceEnv maps the device hint to the environment marker reads.
func deviceEnv(device types.Device) map[string]string {
	if device == types.DeviceGPU {
		return map[string]string{"TORCH_DEVICE": "cuda"}
	}
	return map[string]string{"TORCH_DEVICE": "cpu", "CUDA_VISIBLE_DEVICES": ""}
}
