// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ragprep/pkg/types"
)

// ErrNotFound is returned when a named PDF is not in the raw directory.
var ErrNotFound = errors.New("pdf not found")

// ErrDuplicateDocID is returned for a batch file whose document id is
// already taken by an earlier file, since both would write the same output.
var ErrDuplicateDocID = errors.New("duplicate document id")

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	Processed int
	Failed    int
	Nodes     int
	// Errors maps a failed document's path to its error.
	Errors map[string]error
}

// Total returns the number of documents attempted.
func (r BatchResult) Total() int {
	return r.Processed + r.Failed
}

// HasFailures reports whether any document failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// RunBatch processes paths with up to cfg.Workers documents in flight,
// printing one status line per document and a summary to w. A failed
// document does not stop the others. A path whose document id repeats an
// earlier path's fails with ErrDuplicateDocID without being processed.
func (r *Runner) RunBatch(ctx context.Context, paths []string, w io.Writer) BatchResult {
	result := BatchResult{Errors: make(map[string]error)}
	var mu sync.Mutex

	owners := make(map[string]string, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		id := DocID(p)
		if first, ok := owners[id]; ok {
			err := fmt.Errorf("%w %s: %s and %s", ErrDuplicateDocID, id, first, p)
			result.Failed++
			result.Errors[p] = err
			fmt.Fprintf(w, "failed:    %s (%v)\n", id, err)
			continue
		}
		owners[id] = p
		unique = append(unique, p)
	}

	var g errgroup.Group
	g.SetLimit(max(r.cfg.Workers, 1))
	for _, p := range unique {
		g.Go(func() error {
			out, err := r.runOne(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors[p] = err
				fmt.Fprintf(w, "failed:    %s (%v)\n", DocID(p), err)
				return nil
			}
			result.Processed++
			result.Nodes += len(out.Nodes)
			fmt.Fprintf(w, "processed: %s (%d nodes)\n", out.DocID, len(out.Nodes))
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintf(w, "\nBatch summary: %d processed, %d failed (total: %d, nodes: %d)\n",
		result.Processed, result.Failed, result.Total(), result.Nodes)
	return result
}

func (r *Runner) runOne(ctx context.Context, path string) (*types.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Run(ctx, path)
}

// ListPDFs returns the PDF files directly under rawDir, sorted by name.
func ListPDFs(rawDir string) ([]string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawDir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(rawDir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// FindPDF resolves name to a PDF path. name may be an existing path or a
// file name in rawDir, with or without the .pdf extension; a
// case-insensitive match in rawDir is tried last.
func FindPDF(rawDir, name string) (string, error) {
	candidates := []string{name, filepath.Join(rawDir, name)}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		candidates = append(candidates, name+".pdf", filepath.Join(rawDir, name+".pdf"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	want := strings.ToLower(filepath.Base(name))
	pdfs, err := ListPDFs(rawDir)
	if err == nil {
		for _, p := range pdfs {
			base := strings.ToLower(filepath.Base(p))
			if base == want || strings.TrimSuffix(base, ".pdf") == want {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s (looked in %s)", ErrNotFound, name, rawDir)
}
