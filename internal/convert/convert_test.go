// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ragprep/internal/container"
	"github.com/pdiddy/ragprep/pkg/types"
)

const sampleMarkdown = "{0}------------------------------------------------\n\n# Chương 1\n\nNội dung.\n\n" +
	"{1}------------------------------------------------\n\nTiếp theo.\n"

// writePDF creates a file with a PDF header and returns its path.
func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\nfake body\n"), 0o644))
	return path
}

// fakeMarker returns a commandRunner that writes markdown where
// marker_single would and records the call.
func fakeMarker(markdown string, calls *[][]string) commandRunner {
	return func(_ context.Context, name string, args, env []string) ([]byte, error) {
		*calls = append(*calls, append(append([]string{name}, args...), env...))
		outDir := args[2]
		s := stem(args[0])
		if err := os.MkdirAll(filepath.Join(outDir, s), 0o755); err != nil {
			return nil, err
		}
		return []byte("done"), os.WriteFile(filepath.Join(outDir, s, s+".md"), []byte(markdown), 0o644)
	}
}

func newTestMarker(t *testing.T, run commandRunner) *MarkerConverter {
	t.Helper()
	m := NewMarkerConverter(types.ConversionConfig{}, t.TempDir())
	m.run = run
	return m
}

func TestConversionError(t *testing.T) {
	cause := errors.New("boom")
	var err error = &ConversionError{Path: "a.pdf", Tool: "marker", Err: cause}

	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "converting a.pdf with marker: boom")

	wrapped := fmt.Errorf("document a: %w", err)
	var ce *ConversionError
	require.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, "a.pdf", ce.Path)
}

func TestCheckPDF(t *testing.T) {
	dir := t.TempDir()
	valid := writePDF(t, dir, "ok.pdf")
	text := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(text, []byte("plain text"), 0o644))
	short := filepath.Join(dir, "short.pdf")
	require.NoError(t, os.WriteFile(short, []byte("%P"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"valid", valid, ""},
		{"missing", filepath.Join(dir, "missing.pdf"), "no such file"},
		{"directory", dir, "is a directory"},
		{"not a pdf", text, "unsupported format"},
		{"truncated", short, "unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPDF(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCountPages(t *testing.T) {
	assert.Equal(t, 2, CountPages(sampleMarkdown))
	assert.Equal(t, 3, CountPages("<!-- page 1 -->\na\n<!-- Page 2 -->\nb\n<!--page 3-->\n"))
	assert.Equal(t, 0, CountPages("# Title\n\n---\n"))
}

func TestMarkerConverter_Success(t *testing.T) {
	var calls [][]string
	m := newTestMarker(t, fakeMarker(sampleMarkdown, &calls))
	pdfPath := writePDF(t, t.TempDir(), "bao_cao.pdf")

	res, err := m.Convert(context.Background(), pdfPath, types.DeviceCPU)
	require.NoError(t, err)
	assert.Equal(t, sampleMarkdown, res.Markdown)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "marker", res.Tool)

	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "marker_single", call[0])
	assert.Equal(t, pdfPath, call[1])
	assert.Equal(t, "--output_dir", call[2])
	assert.Equal(t, "--paginate_output", call[4])
	assert.Contains(t, call, "TORCH_DEVICE=cpu")
	assert.Contains(t, call, "CUDA_VISIBLE_DEVICES=")

	_, err = os.Stat(call[3])
	assert.True(t, os.IsNotExist(err), "scratch dir should be removed")
}

func TestMarkerConverter_GPU(t *testing.T) {
	var calls [][]string
	m := newTestMarker(t, fakeMarker(sampleMarkdown, &calls))
	_, err := m.Convert(context.Background(), writePDF(t, t.TempDir(), "a.pdf"), types.DeviceGPU)
	require.NoError(t, err)
	assert.Contains(t, calls[0], "TORCH_DEVICE=cuda")
	assert.False(t, slices.Contains(calls[0], "CUDA_VISIBLE_DEVICES="))
}

func TestMarkerConverter_Failures(t *testing.T) {
	tests := []struct {
		name    string
		run     commandRunner
		timeout time.Duration
		wantErr string
	}{
		{
			name: "tool exits non-zero",
			run: func(context.Context, string, []string, []string) ([]byte, error) {
				return []byte("loading\nCUDA out of memory"), errors.New("exit status 1")
			},
			wantErr: "CUDA out of memory",
		},
		{
			name: "tool missing",
			run: func(context.Context, string, []string, []string) ([]byte, error) {
				return nil, &exec.Error{Name: "marker_single", Err: exec.ErrNotFound}
			},
			wantErr: "not installed",
		},
		{
			name: "no markdown written",
			run: func(context.Context, string, []string, []string) ([]byte, error) {
				return nil, nil
			},
			wantErr: "markdown output not found",
		},
		{
			name: "empty markdown",
			run: func(ctx context.Context, name string, args, env []string) ([]byte, error) {
				var calls [][]string
				return fakeMarker("  \n", &calls)(ctx, name, args, env)
			},
			wantErr: "empty output",
		},
		{
			name: "timeout",
			run: func(ctx context.Context, _ string, _, _ []string) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			timeout: 10 * time.Millisecond,
			wantErr: "timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMarker(t, tt.run)
			if tt.timeout > 0 {
				m.timeout = tt.timeout
			}
			_, err := m.Convert(context.Background(), writePDF(t, t.TempDir(), "a.pdf"), types.DeviceCPU)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConversion)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestMarkerConverter_MissingFile(t *testing.T) {
	called := false
	m := newTestMarker(t, func(context.Context, string, []string, []string) ([]byte, error) {
		called = true
		return nil, nil
	})
	_, err := m.Convert(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), types.DeviceCPU)

	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "marker", ce.Tool)
	assert.False(t, called, "tool must not run for a missing file")
}

// fakeRuntime implements container.Runtime for testing.
type fakeRuntime struct {
	imageErr error
	runFunc  func(image string, opts container.RunOptions) error
	lastOpts container.RunOptions
}

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) Available(context.Context) bool { return true }

func (f *fakeRuntime) ImageExists(context.Context, string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, image string, opts container.RunOptions) error {
	f.lastOpts = opts
	if f.runFunc != nil {
		return f.runFunc(image, opts)
	}
	return nil
}

func TestContainerConverter(t *testing.T) {
	rt := &fakeRuntime{
		runFunc: func(_ string, opts container.RunOptions) error {
			outDir := opts.Mounts[1].Source
			s := stem(opts.Args[1])
			if err := os.MkdirAll(filepath.Join(outDir, s), 0o755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(outDir, s, s+".md"), []byte(sampleMarkdown), 0o644)
		},
	}
	c, err := NewContainerConverter(context.Background(), rt, types.ConversionConfig{}, t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	pdfPath := writePDF(t, dir, "tai_lieu.pdf")
	res, err := c.Convert(context.Background(), pdfPath, types.DeviceGPU)
	require.NoError(t, err)
	assert.Equal(t, sampleMarkdown, res.Markdown)
	assert.Equal(t, "marker-container", res.Tool)

	opts := rt.lastOpts
	assert.Equal(t, container.Mount{Source: dir, Target: "/input", ReadOnly: true}, opts.Mounts[0])
	assert.Equal(t, "/output", opts.Mounts[1].Target)
	assert.Equal(t, []string{"marker_single", "/input/tai_lieu.pdf", "--output_dir", "/output", "--paginate_output"}, opts.Args)
	assert.Equal(t, "cuda", opts.Env["TORCH_DEVICE"])
	assert.True(t, opts.GPU)
}

func TestContainerConverter_Errors(t *testing.T) {
	_, err := NewContainerConverter(context.Background(), &fakeRuntime{imageErr: errors.New("missing")},
		types.ConversionConfig{}, t.TempDir())
	assert.ErrorContains(t, err, "marker image not available in docker")

	rt := &fakeRuntime{runFunc: func(string, container.RunOptions) error { return errors.New("exit 137") }}
	c, err := NewContainerConverter(context.Background(), rt, types.ConversionConfig{}, t.TempDir())
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), writePDF(t, t.TempDir(), "a.pdf"), types.DeviceCPU)
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorContains(t, err, "exit 137")
	assert.False(t, rt.lastOpts.GPU)
	assert.Equal(t, "", rt.lastOpts.Env["CUDA_VISIBLE_DEVICES"])
}

func TestPDFTextConverter_InvalidPDF(t *testing.T) {
	_, err := (&PDFTextConverter{}).Convert(context.Background(), writePDF(t, t.TempDir(), "broken.pdf"), types.DeviceCPU)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversion)

	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pdftext", ce.Tool)
}

func TestPageParagraphs(t *testing.T) {
	got := pageParagraphs("\n  Dòng một  \r\nDòng hai\n\n\n\nĐoạn mới\n  \n")
	assert.Equal(t, "Dòng một\nDòng hai\n\nĐoạn mới", got)
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend types.ConversionBackend
		want    string
		wantErr bool
	}{
		{types.BackendMarker, "*convert.MarkerConverter", false},
		{"", "*convert.MarkerConverter", false},
		{types.BackendPDFText, "*convert.PDFTextConverter", false},
		{"ocr", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			c, err := New(context.Background(), types.ConversionConfig{Backend: tt.backend}, t.TempDir())
			if tt.wantErr {
				assert.ErrorContains(t, err, "unsupported backend")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fmt.Sprintf("%T", c))
		})
	}
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c | d", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "only", lastLines("only", 5))
	assert.True(t, strings.HasPrefix(lastLines("x\ny", 5), "x"))
}
