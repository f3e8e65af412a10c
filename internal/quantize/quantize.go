// Package quantize derives reduced-precision artifacts from a full-precision
// graph. The input artifact is never modified.
package quantize

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Reducer applies one precision mode to an artifact
type Reducer struct {
	dynamic engine.DynamicQuantizer
	half    types.Capability[engine.HalfCaster]
	log     logrus.FieldLogger
}

// NewReducer creates a Reducer. The half-precision caster is optional; an
// Unavailable capability makes fp16 requests fail with DependencyMissingError.
func NewReducer(dynamic engine.DynamicQuantizer, half types.Capability[engine.HalfCaster], log logrus.FieldLogger) *Reducer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reducer{
		dynamic: dynamic,
		half:    half,
		log:     log,
	}
}

// Reduce returns the artifact for mode. PrecisionNone returns in unchanged
// without touching the filesystem; fp16 and int8 write exactly one new file
// at in.Derive(mode).
func (r *Reducer) Reduce(ctx context.Context, in types.Artifact, mode types.Precision) (types.Artifact, error) {
	switch mode {
	case types.PrecisionNone:
		return in, nil
	case types.PrecisionFP16, types.PrecisionInt8:
	default:
		return types.Artifact{}, fmt.Errorf("%w: %q", types.ErrUnknownPrecision, mode)
	}

	fail := func(err error) (types.Artifact, error) {
		return types.Artifact{}, &types.QuantizationError{Mode: mode, Path: in.Path, Err: err}
	}

	if in.Precision != types.PrecisionFull {
		return fail(fmt.Errorf("%w: got %s", types.ErrNotFullPrecision, in.Precision))
	}
	if _, err := os.Stat(in.Path); err != nil {
		return fail(err)
	}

	out := in.Derive(mode)
	start := time.Now()

	switch mode {
	case types.PrecisionFP16:
		caster, ok := r.half.Get()
		if !ok {
			return types.Artifact{}, &types.DependencyMissingError{
				Dependency: "onnxconverter-common",
				Hint:       "pip install onnxconverter-common and rerun",
				Err:        fmt.Errorf("%s", r.half.Reason()),
			}
		}
		if err := caster.CastFloat16(ctx, in.Path, out.Path); err != nil {
			os.Remove(out.Path)
			return fail(err)
		}
	case types.PrecisionInt8:
		if err := r.dynamic.QuantizeDynamic(ctx, in.Path, out.Path); err != nil {
			os.Remove(out.Path)
			return fail(err)
		}
	}

	if _, err := os.Stat(out.Path); err != nil {
		return fail(fmt.Errorf("quantized artifact missing: %w", err))
	}

	r.log.WithFields(logrus.Fields{
		"src":       in.Path,
		"dst":       out.Path,
		"precision": mode,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("derived reduced-precision artifact")

	return out, nil
}
