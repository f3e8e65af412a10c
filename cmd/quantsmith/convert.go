package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/internal/pipeline"
	"github.com/quantsmith/quantsmith/internal/ui"
	"github.com/quantsmith/quantsmith/pkg/types"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Export, reduce, benchmark and manifest a checkpoint",
	Long: `Runs the full conversion pipeline on a detection checkpoint:

  1. export the checkpoint to a static-shape ONNX graph
  2. reduce its precision (fp16, int8 or none)
  3. optionally time N forward passes on CPU
  4. write model.json with the artifact digest and latency metrics

The pipeline stops at the first failing stage and writes no manifest for a
failed run.`,
	Example: `  quantsmith convert --weights runs/train/best.pt
  quantsmith convert --weights best.pt --img 640 --quant fp16 --benchmark 50 --data coco.yaml`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

var (
	convertWeights string
	convertSign    bool
)

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&convertWeights, "weights", "", "path to .pt checkpoint")
	convertCmd.Flags().String("out", "onnx", "output directory")
	convertCmd.Flags().Int("img", 1280, "image size (square)")
	convertCmd.Flags().Int("batch", 1, "batch size for the static input shape")
	convertCmd.Flags().String("quant", "int8", "precision reduction: fp16, int8 or none")
	convertCmd.Flags().Int("benchmark", 0, "run a latency benchmark with N inputs (0 skips)")
	convertCmd.Flags().String("data", "", "dataset yaml to sample benchmark images from")
	convertCmd.Flags().Int("threads", 0, "intra-op threads for benchmarking (0 = all cores)")
	convertCmd.Flags().BoolVar(&convertSign, "sign", false, "sign the manifest")
	convertCmd.Flags().Bool("no-progress", false, "disable the benchmark progress bar")

	convertCmd.MarkFlagRequired("weights")

	bindFlags(convertCmd, map[string]string{
		"output.dir":              "out",
		"export.img_size":         "img",
		"export.batch":            "batch",
		"quantize.mode":           "quant",
		"bench.samples":           "benchmark",
		"bench.data":              "data",
		"bench.threads":           "threads",
		"security.sign_manifests": "sign",
	})
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		cfg.UI.ProgressBar = false
	}

	mode, err := types.ParsePrecision(cfg.Quantize.Mode)
	if err != nil {
		return err
	}

	writer, err := newManifestWriter(cfg, cfg.Security.SignManifests)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	emitter := newEmitter(cfg)
	defer emitter.Flush(2 * time.Second)

	orch := pipeline.New(
		newExporter(cfg),
		newReducer(cmd.Context(), cfg, mode),
		newSampler(cfg, out),
		writer,
		pipeline.WithLogger(log.StandardLogger()),
		pipeline.WithEmitter(emitter),
		pipeline.WithStageHook(func(stage pipeline.Stage, index, total int) {
			fmt.Fprintf(out, "[%d/%d] %s\n", index, total, stageBanner(stage, mode, cfg.Bench.Samples))
		}),
	)

	start := time.Now()
	outcome, err := orch.Run(cmd.Context(), pipeline.Request{
		Checkpoint: convertWeights,
		OutputDir:  cfg.Output.Dir,
		ImageSize:  cfg.Export.ImgSize,
		Batch:      cfg.Export.Batch,
		Mode:       mode,
		Samples:    cfg.Bench.Samples,
		Dataset:    cfg.Bench.Data,
	})
	if err != nil {
		return err
	}

	if m := outcome.Metrics; m != nil {
		fmt.Fprintf(out, "Latency: median %s, p95 %s (%d samples)\n",
			ui.FormatMillis(m.MedianMs), ui.FormatMillis(m.P95Ms), m.Samples)
	}
	fmt.Fprintf(out, "✅ Done in %s: output %s\n", ui.FormatDuration(time.Since(start)), outcome.Final.Path)
	fmt.Fprintf(out, "   Manifest: %s (sha256 %s)\n", manifest.Path(cfg.Output.Dir), outcome.Manifest.SHA256)
	return nil
}

func stageBanner(stage pipeline.Stage, mode types.Precision, samples int) string {
	switch stage {
	case pipeline.StageExport:
		return "Exporting ONNX …"
	case pipeline.StageQuantize:
		return fmt.Sprintf("Quantizing to %s …", strings.ToUpper(string(mode)))
	case pipeline.StageBenchmark:
		if samples <= 0 {
			return "Benchmark skipped"
		}
		return fmt.Sprintf("Benchmarking (%d samples) …", samples)
	default:
		return "Writing metadata …"
	}
}
