package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/logging"
	"github.com/quantsmith/quantsmith/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "quantsmith",
		Short: "Convert, reduce and attest object-detection models",
		Long: `quantsmith turns a trained detection checkpoint into a deployable ONNX
artifact, optionally reduces its numeric precision, measures CPU inference
latency and records a provenance manifest (model.json) next to the result.

Key Commands:
  convert   - Run the full pipeline: export, quantize, benchmark, manifest
  verify    - Recompute an artifact digest against its manifest
  list      - Show manifested output directories below a root
  serve     - Serve an output directory over HTTP`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/quantsmith/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
}

// initConfig loads configuration, layers the command's flags over it and
// configures logging
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return fmt.Errorf("error initializing config: %w", err)
	}

	v := config.GetViper()
	v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	v.BindPFlag("log.format", cmd.Flags().Lookup("log-format"))
	if bind, ok := flagBindings[cmd]; ok {
		for key, flag := range bind {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	if err := config.Reload(); err != nil {
		return err
	}

	cfg := config.Get()
	return logging.Init(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

// flagBindings maps a command's flags onto config keys so flags win over
// file and environment values
var flagBindings = map[*cobra.Command]map[string]string{}

func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flagBindings[cmd] = keys
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "stage %s failed: %v\n", stageErr.Stage, stageErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
