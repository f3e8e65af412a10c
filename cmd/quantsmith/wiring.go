package main

import (
	"context"
	"fmt"
	"io"

	"github.com/quantsmith/quantsmith/internal/bench"
	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/internal/engine/onnxrt"
	"github.com/quantsmith/quantsmith/internal/export"
	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/internal/quantize"
	"github.com/quantsmith/quantsmith/internal/signing"
	"github.com/quantsmith/quantsmith/internal/telemetry"
	"github.com/quantsmith/quantsmith/internal/ui"
	"github.com/quantsmith/quantsmith/pkg/types"
	log "github.com/sirupsen/logrus"
)

func newToolchain(cfg *config.Config) *onnxrt.Toolchain {
	return onnxrt.NewToolchain(cfg.Engine.Python, log.StandardLogger())
}

func newExporter(cfg *config.Config) *export.Exporter {
	return export.New(onnxrt.NewExporter(newToolchain(cfg)), log.StandardLogger())
}

// newReducer probes for the fp16 caster only when fp16 is requested
func newReducer(ctx context.Context, cfg *config.Config, mode types.Precision) *quantize.Reducer {
	tc := newToolchain(cfg)
	half := types.Unavailable[engine.HalfCaster]("fp16 caster not probed")
	if mode == types.PrecisionFP16 {
		half = onnxrt.ProbeHalfCaster(ctx, tc)
	}
	return quantize.NewReducer(onnxrt.NewQuantizer(tc), half, log.StandardLogger())
}

func newSampler(cfg *config.Config, out io.Writer) *bench.Sampler {
	opts := []bench.SamplerOption{bench.WithThreads(cfg.Bench.Threads)}
	if cfg.UI.ProgressBar {
		opts = append(opts, bench.WithProgress(func(total int) bench.Progress {
			return ui.NewProgressBar(out, total, "Benchmarking")
		}))
	}
	return bench.NewSampler(onnxrt.NewRuntime(newToolchain(cfg)), log.StandardLogger(), opts...)
}

func newManifestWriter(cfg *config.Config, sign bool) (*manifest.Writer, error) {
	var opts []manifest.WriterOption
	if sign {
		kp, err := signing.GetOrCreateKeys(cfg.Security.KeysDir, log.StandardLogger())
		if err != nil {
			return nil, fmt.Errorf("failed to load signing keys: %w", err)
		}
		opts = append(opts, manifest.WithSigner(kp))
	}
	return manifest.NewWriter(log.StandardLogger(), opts...), nil
}

func newEmitter(cfg *config.Config) telemetry.Emitter {
	return telemetry.Or(telemetry.Resolve(cfg.Telemetry.Endpoint, cfg.Telemetry.EventsPerSecond, log.StandardLogger()))
}
