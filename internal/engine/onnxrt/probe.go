package onnxrt

import (
	"context"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/pkg/types"
)

// ProbeHalfCaster checks once whether onnxconverter-common can be imported
func ProbeHalfCaster(ctx context.Context, tc *Toolchain) types.Capability[engine.HalfCaster] {
	if _, err := tc.runScript(ctx, probeFloat16Script); err != nil {
		tc.Logger.WithError(err).Debug("float16 caster unavailable")
		return types.Unavailable[engine.HalfCaster]("onnxconverter-common is not importable by " + tc.Python)
	}
	return types.Available[engine.HalfCaster](&Caster{tc: tc})
}
