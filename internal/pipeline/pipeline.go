// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the conversion, cleaning, normalization, chunking,
// audit, tagging and export stages for one document or a batch.
package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/pdiddy/ragprep/internal/audit"
	"github.com/pdiddy/ragprep/internal/chunk"
	"github.com/pdiddy/ragprep/internal/clean"
	"github.com/pdiddy/ragprep/internal/convert"
	"github.com/pdiddy/ragprep/internal/export"
	"github.com/pdiddy/ragprep/internal/normalize"
	"github.com/pdiddy/ragprep/internal/tag"
	"github.com/pdiddy/ragprep/pkg/types"
)

// ErrEmptyInput is returned when no text remains after cleaning or
// normalization.
var ErrEmptyInput = errors.New("empty input after cleaning")

// Indexer stores a finished document. *index.Store implements it.
type Indexer interface {
	Ingest(ctx context.Context, out *types.Output) (int, error)
}

// Runner executes the pipeline with one configuration. It is safe for
// concurrent use by RunBatch.
type Runner struct {
	cfg        types.PipelineConfig
	converter  convert.Converter
	cleaner    *clean.Cleaner
	normalizer *normalize.Normalizer
	chunker    *chunk.Chunker
	auditor    *audit.Auditor
	tagger     *tag.Tagger
	indexer    Indexer
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithIndexer stores every finished document in idx.
func WithIndexer(idx Indexer) Option {
	return func(r *Runner) { r.indexer = idx }
}

// WithClock replaces time.Now for processed_at and export stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New validates cfg and builds every stage. The normalization table and
// taxonomy are loaded from the configured files when set.
func New(cfg types.PipelineConfig, conv convert.Converter, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.New("pipeline: converter is required")
	}

	r := &Runner{
		cfg:       cfg,
		converter: conv,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	for _, o := range opts {
		o(r)
	}

	table := normalize.DefaultTable()
	if cfg.Normalize.Table != "" {
		t, err := normalize.LoadTable(cfg.Normalize.Table)
		if err != nil {
			return nil, err
		}
		table = t
	}
	norm, err := normalize.New(table)
	if err != nil {
		return nil, err
	}

	taxonomy := tag.DefaultTaxonomy()
	if cfg.Tagging.Taxonomy != "" {
		if taxonomy, err = tag.LoadTaxonomy(cfg.Tagging.Taxonomy); err != nil {
			return nil, err
		}
	}

	chunker, err := chunk.New(cfg.Chunking)
	if err != nil {
		return nil, err
	}

	r.cleaner = clean.New(clean.DefaultRules())
	r.normalizer = norm
	r.chunker = chunker
	r.auditor = audit.New(cfg.Chunking, cfg.Audit, r.log)
	r.tagger = tag.New(taxonomy, cfg.Tagging.MaxTags)
	return r, nil
}

// DocID derives a document id from a file name: the stem with every rune
// other than a letter, digit, '_' or '-' replaced by '_'.
func DocID(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, stem)
}

func (r *Runner) newRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(r.now()), r.entropy).String()
}

// Run processes one PDF. The JSON output and review exports are written
// only after every stage has succeeded, so a failed run leaves no partial
// result.
func (r *Runner) Run(ctx context.Context, pdfPath string) (*types.Output, error) {
	docID := DocID(pdfPath)
	runID := r.newRunID()
	log := r.log.With("doc_id", docID, "run_id", runID)
	snap := r.snapshotter(docID, log)
	started := r.now()

	log.Info("converting", "path", pdfPath, "device", r.cfg.Conversion.Device)
	conv, err := r.converter.Convert(ctx, pdfPath, r.cfg.Conversion.Device)
	if err != nil {
		return nil, err
	}
	log.Info("converted", "tool", conv.Tool, "pages", conv.Pages, "duration", conv.Duration.Round(time.Millisecond))
	snap(1, export.Snapshot{Stage: "converted", Content: conv.Markdown})

	cleaned, cleanStats := r.cleaner.Clean(conv.Markdown)
	log.Info("cleaned",
		"input_chars", cleanStats.InputChars,
		"output_chars", cleanStats.OutputChars,
		"page_artifacts", cleanStats.PageArtifactsRemoved,
		"repeated_lines", cleanStats.RepeatedLinesRemoved,
	)
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("%s: %w", docID, ErrEmptyInput)
	}
	snap(2, export.Snapshot{Stage: "cleaned", Content: cleaned, Stats: cleanStats})

	normalized := r.normalizer.Normalize(cleaned)
	cleanStats.NormalizedCharsDelta = utf8.RuneCountInString(normalized) - utf8.RuneCountInString(cleaned)
	if strings.TrimSpace(normalized) == "" {
		return nil, fmt.Errorf("%s: %w", docID, ErrEmptyInput)
	}
	snap(3, export.Snapshot{Stage: "normalized", Content: normalized})

	nodes, chunkStats := r.chunker.Chunk(docID, normalized)
	log.Info("chunked", "nodes", chunkStats.TotalNodes, "avg_tokens", chunkStats.AvgTokens, "oversized", chunkStats.OversizedNodes)
	snap(4, export.Snapshot{Stage: "chunked", Nodes: nodes, Stats: chunkStats})

	audited := r.auditor.Audit(docID, nodes)
	snap(5, export.Snapshot{Stage: "audited", Nodes: audited.Nodes, Stats: audited.Stats})

	tagged, tagStats := r.tagger.Tag(audited.Nodes, pdfPath)
	log.Info("tagged", "unique_tags", tagStats.TotalUniqueTags, "domains", tagStats.DetectedDomains)
	snap(6, export.Snapshot{Stage: "tagged", Nodes: tagged, Stats: tagStats})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &types.Output{
		DocID: docID,
		Nodes: types.ToOutputNodes(tagged),
		ProcessingInfo: types.ProcessingInfo{
			SourceFile:      filepath.Base(pdfPath),
			ProcessedAt:     r.now().UTC(),
			PipelineVersion: types.PipelineVersion,
			RunID:           runID,
			Converter:       conv.Tool,
			Device:          r.cfg.Conversion.Device,
			PageCount:       conv.Pages,
			TotalNodes:      len(tagged),
			CleaningStats:   cleanStats,
			ChunkingStats:   chunkStats,
			AuditStats:      audited.Stats,
			TaggingStats:    tagStats,
		},
	}

	jsonPath, err := export.WriteJSON(r.cfg.Paths.ProcessedDir, out)
	if err != nil {
		return nil, err
	}
	log.Info("wrote output", "path", jsonPath, "nodes", len(out.Nodes))

	for _, f := range export.ReviewFormats {
		path, err := export.WriteText(r.cfg.Paths.ExportDir, out, f, r.now())
		if err != nil {
			return out, fmt.Errorf("exporting %s: %w", f, err)
		}
		log.Debug("exported", "format", f, "path", path)
	}

	if r.indexer != nil {
		n, err := r.indexer.Ingest(ctx, out)
		if err != nil {
			return out, fmt.Errorf("indexing %s: %w", docID, err)
		}
		log.Info("indexed", "nodes", n)
	}

	log.Info("pipeline complete", "nodes", len(out.Nodes), "elapsed", r.now().Sub(started).Round(time.Millisecond))
	return out, nil
}

// snapshotter returns a function that saves stage snapshots when
// intermediate output is enabled. Write failures are logged, not
// returned.
func (r *Runner) snapshotter(docID string, log *slog.Logger) func(int, export.Snapshot) {
	if !r.cfg.SaveIntermediate {
		return func(int, export.Snapshot) {}
	}
	return func(step int, s export.Snapshot) {
		s.DocID = docID
		s.CreatedAt = r.now().UTC()
		path, err := export.WriteSnapshot(r.cfg.Paths.TempDir, step, s)
		if err != nil {
			log.Warn("snapshot failed", "stage", s.Stage, "error", err)
			return
		}
		log.Debug("snapshot saved", "stage", s.Stage, "path", path)
	}
}
