// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes processed documents: the JSON consumed by the RAG
// index, text review files, and per-stage snapshots.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/ragprep/pkg/types"
)

// JSONSuffix is appended to the document id to name the processed output.
const JSONSuffix = "_lightrag.json"

// JSONPath returns <dir>/<docID>_lightrag.json.
func JSONPath(dir, docID string) string {
	return filepath.Join(dir, docID+JSONSuffix)
}

// WriteJSON writes out to JSONPath(dir, out.DocID) and returns the path.
func WriteJSON(dir string, out *types.Output) (string, error) {
	data, err := marshalJSON(out)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", out.DocID, err)
	}
	path := JSONPath(dir, out.DocID)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadJSON loads a processed output file.
func ReadJSON(path string) (*types.Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var out types.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if out.DocID == "" {
		out.DocID = strings.TrimSuffix(filepath.Base(path), JSONSuffix)
	}
	return &out, nil
}

// ResolveJSON finds a processed file given a path, a file name in dir, or
// a bare document id.
func ResolveJSON(dir, name string) (string, error) {
	candidates := []string{
		name,
		filepath.Join(dir, name),
		JSONPath(dir, strings.TrimSuffix(name, ".json")),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("processed file %q not found in %s: %w", name, dir, os.ErrNotExist)
}

// ListJSON returns the processed files in dir, sorted by name.
func ListJSON(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+JSONSuffix))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Snapshot is the intermediate state saved after one stage.
type Snapshot struct {
	DocID     string       `json:"doc_id"`
	Stage     string       `json:"stage"`
	Content   string       `json:"content,omitempty"`
	Nodes     []types.Node `json:"nodes,omitempty"`
	Stats     any          `json:"stats,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// WriteSnapshot writes s to <dir>/<doc_id>_<NN>_<stage>.json.
func WriteSnapshot(dir string, step int, s Snapshot) (string, error) {
	data, err := marshalJSON(s)
	if err != nil {
		return "", fmt.Errorf("encoding %s snapshot: %w", s.Stage, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%02d_%s.json", s.DocID, step, s.Stage))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// marshalJSON indents with two spaces and leaves HTML and non-ASCII
// characters unescaped.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so readers never see a partial file.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
