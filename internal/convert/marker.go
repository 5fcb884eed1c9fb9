// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/ragprep/pkg/types"
)

const toolMarker = "marker"

// commandRunner runs a command with extra environment and returns its
// combined output.
type commandRunner func(ctx context.Context, name string, args, env []string) ([]byte, error)

func runCommand(ctx context.Context, name string, args, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// MarkerConverter runs a locally installed marker_single.
type MarkerConverter struct {
	bin     string
	tempDir string
	timeout time.Duration
	run     commandRunner
}

// NewMarkerConverter creates a converter for the marker_single binary
// named in cfg.
func NewMarkerConverter(cfg types.ConversionConfig, tempDir string) *MarkerConverter {
	def := types.DefaultPipelineConfig().Conversion
	m := &MarkerConverter{
		bin:     cfg.MarkerBin,
		tempDir: tempDir,
		timeout: cfg.Timeout,
		run:     runCommand,
	}
	if m.bin == "" {
		m.bin = def.MarkerBin
	}
	if m.timeout <= 0 {
		m.timeout = def.Timeout
	}
	return m
}

// Convert runs marker_single on pdfPath and returns its paginated Markdown.
func (m *MarkerConverter) Convert(ctx context.Context, pdfPath string, device types.Device) (Result, error) {
	fail := func(err error) (Result, error) {
		return Result{}, &ConversionError{Path: pdfPath, Tool: toolMarker, Err: err}
	}
	if err := checkPDF(pdfPath); err != nil {
		return fail(err)
	}

	outDir, err := scratchDir(m.tempDir)
	if err != nil {
		return fail(fmt.Errorf("creating output dir: %w", err))
	}
	defer os.RemoveAll(outDir)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	args := []string{pdfPath, "--output_dir", outDir, "--paginate_output"}
	start := time.Now()
	out, err := m.run(ctx, m.bin, args, envList(deviceEnv(device)))
	elapsed := time.Since(start)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fail(fmt.Errorf("timed out after %s", m.timeout))
	case errors.Is(err, exec.ErrNotFound):
		return fail(fmt.Errorf("%s not installed (pip install marker-pdf): %w", m.bin, err))
	case err != nil:
		return fail(fmt.Errorf("%w: %s", err, lastLines(string(out), 5)))
	}

	md, err := readMarkerOutput(outDir, pdfPath)
	if err != nil {
		return fail(err)
	}
	return Result{
		Markdown: md,
		Pages:    CountPages(md),
		Tool:     toolMarker,
		Duration: elapsed,
	}, nil
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	slices.Sort(list)
	return list
}

// lastLines returns the final n non-empty lines of tool output.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
