// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/ragprep/internal/container"
	"github.com/pdiddy/ragprep/pkg/types"
)

const (
	toolMarkerContainer = "marker-container"

	containerInput  = "/input"
	containerOutput = "/output"
)

// ContainerConverter runs marker inside a container image. It depends on
// a container.Runtime (docker or podman) injected at construction time.
type ContainerConverter struct {
	runtime container.Runtime
	image   string
	bin     string
	tempDir string
	timeout time.Duration
}

// NewContainerConverter creates a converter that runs cfg.Image with rt.
// It verifies that the image exists locally before returning.
func NewContainerConverter(ctx context.Context, rt container.Runtime, cfg types.ConversionConfig, tempDir string) (*ContainerConverter, error) {
	def := types.DefaultPipelineConfig().Conversion
	c := &ContainerConverter{
		runtime: rt,
		image:   cfg.Image,
		bin:     cfg.MarkerBin,
		tempDir: tempDir,
		timeout: cfg.Timeout,
	}
	if c.image == "" {
		c.image = def.Image
	}
	if c.bin == "" {
		c.bin = def.MarkerBin
	}
	if c.timeout <= 0 {
		c.timeout = def.Timeout
	}
	if err := rt.ImageExists(ctx, c.image); err != nil {
		return nil, fmt.Errorf("marker image not available in %s: %w", rt.Name(), err)
	}
	return c, nil
}

// Convert mounts the PDF's directory read-only and a scratch output
// directory, then runs marker_single inside the container.
func (c *ContainerConverter) Convert(ctx context.Context, pdfPath string, device types.Device) (Result, error) {
	fail := func(err error) (Result, error) {
		return Result{}, &ConversionError{Path: pdfPath, Tool: toolMarkerContainer, Err: err}
	}
	if err := checkPDF(pdfPath); err != nil {
		return fail(err)
	}
	absPDF, err := filepath.Abs(pdfPath)
	if err != nil {
		return fail(err)
	}

	outDir, err := scratchDir(c.tempDir)
	if err != nil {
		return fail(fmt.Errorf("creating output dir: %w", err))
	}
	defer os.RemoveAll(outDir)
	if outDir, err = filepath.Abs(outDir); err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	opts := container.RunOptions{
		Mounts: []container.Mount{
			{Source: filepath.Dir(absPDF), Target: containerInput, ReadOnly: true},
			{Source: outDir, Target: containerOutput},
		},
		Env: deviceEnv(device),
		Args: []string{
			c.bin,
			containerInput + "/" + filepath.Base(absPDF),
			"--output_dir", containerOutput,
			"--paginate_output",
		},
		GPU:    device == types.DeviceGPU,
		Stderr: &stderr,
	}
	start := time.Now()
	err = c.runtime.Run(ctx, c.image, opts)
	elapsed := time.Since(start)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fail(fmt.Errorf("timed out after %s", c.timeout))
	case err != nil:
		return fail(fmt.Errorf("%w: %s", err, lastLines(stderr.String(), 5)))
	}

	md, err := readMarkerOutput(outDir, absPDF)
	if err != nil {
		return fail(err)
	}
	return Result{
		Markdown: md,
		Pages:    CountPages(md),
		Tool:     toolMarkerContainer,
		Duration: elapsed,
	}, nil
}
