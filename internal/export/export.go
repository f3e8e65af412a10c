// Package export materializes the full-precision intermediate graph from a
// trained checkpoint through an external export engine.
package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Options configures one export
type Options struct {
	Checkpoint string
	ImageSize  int
	Batch      int
	OutputDir  string
}

// Validate checks the static constraints on an export request
func (o Options) Validate() error {
	if o.ImageSize <= 0 {
		return fmt.Errorf("%w: got %d", types.ErrInvalidDimension, o.ImageSize)
	}
	if o.Batch <= 0 {
		return fmt.Errorf("%w: got %d", types.ErrInvalidBatch, o.Batch)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}

// Exporter wraps a ModelExporter with validation and error classification
type Exporter struct {
	engine engine.ModelExporter
	log    logrus.FieldLogger
}

// New creates an Exporter
func New(e engine.ModelExporter, log logrus.FieldLogger) *Exporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exporter{engine: e, log: log}
}

// Export produces exactly one full-precision artifact in opts.OutputDir.
// Every failure is an *types.ExportError; export is deterministic so callers
// should not retry.
func (x *Exporter) Export(ctx context.Context, opts Options) (types.Artifact, error) {
	fail := func(err error) (types.Artifact, error) {
		return types.Artifact{}, &types.ExportError{Checkpoint: opts.Checkpoint, Err: err}
	}

	if err := opts.Validate(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(opts.Checkpoint)
	if err != nil {
		return fail(fmt.Errorf("checkpoint not readable: %w", err))
	}
	if info.IsDir() {
		return fail(fmt.Errorf("checkpoint %s is a directory", opts.Checkpoint))
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fail(fmt.Errorf("create output directory: %w", err))
	}

	start := time.Now()
	path, err := x.engine.Export(ctx, engine.ExportRequest{
		Checkpoint: opts.Checkpoint,
		ImageSize:  opts.ImageSize,
		Batch:      opts.Batch,
		OutputDir:  opts.OutputDir,
	})
	if err != nil {
		return fail(err)
	}

	if _, err := os.Stat(path); err != nil {
		return fail(fmt.Errorf("exported artifact missing: %w", err))
	}

	x.log.WithFields(logrus.Fields{
		"path":    path,
		"imgsz":   opts.ImageSize,
		"batch":   opts.Batch,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("exported full-precision artifact")

	return types.Artifact{Path: path, Precision: types.PrecisionFull}, nil
}
