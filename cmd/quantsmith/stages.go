package main

import (
	"encoding/json"
	"fmt"

	"github.com/quantsmith/quantsmith/internal/bench"
	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/export"
	"github.com/quantsmith/quantsmith/internal/ui"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a checkpoint to ONNX without reducing it",
	Long: `Runs only the export stage: the checkpoint is converted to a static-shape
ONNX graph in the output directory. No manifest is written.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var quantizeCmd = &cobra.Command{
	Use:   "quantize [model.onnx]",
	Short: "Derive a reduced-precision copy of a full-precision ONNX artifact",
	Long: `Runs only the precision reduction stage. The derived artifact is written
next to the input as <stem>_<mode>.onnx; the input is never modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuantize,
}

var benchCmd = &cobra.Command{
	Use:   "bench [model.onnx]",
	Short: "Measure CPU inference latency of an ONNX artifact",
	Long: `Runs only the benchmark stage: N inputs are staged (dataset images or
synthetic tensors) and one forward pass per input is timed.`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

var (
	exportWeights string
	benchJSON     bool
)

func init() {
	rootCmd.AddCommand(exportCmd, quantizeCmd, benchCmd)

	exportCmd.Flags().StringVar(&exportWeights, "weights", "", "path to .pt checkpoint")
	exportCmd.Flags().String("out", "onnx", "output directory")
	exportCmd.Flags().Int("img", 1280, "image size (square)")
	exportCmd.Flags().Int("batch", 1, "batch size for the static input shape")
	exportCmd.MarkFlagRequired("weights")
	bindFlags(exportCmd, map[string]string{
		"output.dir":      "out",
		"export.img_size": "img",
		"export.batch":    "batch",
	})

	quantizeCmd.Flags().String("quant", "int8", "precision reduction: fp16, int8 or none")
	bindFlags(quantizeCmd, map[string]string{
		"quantize.mode": "quant",
	})

	benchCmd.Flags().Int("benchmark", 50, "number of timed forward passes")
	benchCmd.Flags().Int("img", 1280, "image size (square)")
	benchCmd.Flags().Int("batch", 1, "batch size of the artifact's static input shape")
	benchCmd.Flags().String("data", "", "dataset yaml to sample benchmark images from")
	benchCmd.Flags().Int("threads", 0, "intra-op threads (0 = all cores)")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false, "print metrics as JSON")
	bindFlags(benchCmd, map[string]string{
		"export.img_size": "img",
		"export.batch":    "batch",
		"bench.data":      "data",
		"bench.threads":   "threads",
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Exporting ONNX …")
	art, err := newExporter(cfg).Export(cmd.Context(), export.Options{
		Checkpoint: exportWeights,
		ImageSize:  cfg.Export.ImgSize,
		Batch:      cfg.Export.Batch,
		OutputDir:  cfg.Output.Dir,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Exported: %s\n", art.Path)
	return nil
}

func runQuantize(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	mode, err := types.ParsePrecision(cfg.Quantize.Mode)
	if err != nil {
		return err
	}

	in := types.Artifact{Path: args[0], Precision: types.PrecisionFromName(args[0])}

	fmt.Fprintf(out, "Quantizing %s to %s …\n", in.Name(), mode)
	art, err := newReducer(cmd.Context(), cfg, mode).Reduce(cmd.Context(), in, mode)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Output: %s\n", art.Path)
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	samples, _ := cmd.Flags().GetInt("benchmark")
	art := types.Artifact{Path: args[0], Precision: types.PrecisionFromName(args[0])}

	if benchJSON {
		cfg.UI.ProgressBar = false
	}
	sampler := newSampler(cfg, cmd.ErrOrStderr())

	metrics, err := sampler.Sample(cmd.Context(), art, bench.Options{
		ImageSize: cfg.Export.ImgSize,
		Batch:     cfg.Export.Batch,
		Samples:   samples,
		Dataset:   cfg.Bench.Data,
	})
	if err != nil {
		return err
	}

	if benchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	}

	fmt.Fprintf(out, "Model:   %s\n", art.Name())
	fmt.Fprintf(out, "Threads: %d\n", sampler.Threads())
	fmt.Fprintf(out, "Samples: %d\n", metrics.Samples)
	fmt.Fprintf(out, "Median:  %s\n", ui.FormatMillis(metrics.MedianMs))
	fmt.Fprintf(out, "P95:     %s\n", ui.FormatMillis(metrics.P95Ms))
	return nil
}
