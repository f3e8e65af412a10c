package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantsmith/quantsmith/internal/storage"
	"github.com/quantsmith/quantsmith/internal/ui"
	"github.com/spf13/cobra"
)

var (
	initForce   bool
	initPath    string
	initCleanup bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize or clean up quantsmith directories and configuration",
	Long: `Initialize the quantsmith environment by creating necessary directories
and a default configuration file if they don't already exist.

This command will create:
  - Base directory (~/.quantsmith by default)
  - Keys directory for manifest signing keys
  - Configuration file (~/.config/quantsmith/config.yaml)

Use --path to initialize in a custom location instead of the default.
Use --cleanup to remove all quantsmith directories and configuration.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing configuration")
	initCmd.Flags().StringVar(&initPath, "path", "", "initialize in a custom path instead of default")
	initCmd.Flags().BoolVar(&initCleanup, "cleanup", false, "remove all quantsmith directories and configuration")
}

type initLayout struct {
	baseDir   string
	keysDir   string
	configDir string
}

// resolveLayout uses --path when given, else the default locations
func resolveLayout() (initLayout, error) {
	if initPath != "" {
		return initLayout{
			baseDir:   initPath,
			keysDir:   filepath.Join(initPath, "keys"),
			configDir: filepath.Join(initPath, "config"),
		}, nil
	}

	paths, err := storage.NewPaths()
	if err != nil {
		return initLayout{}, err
	}
	return initLayout{
		baseDir:   paths.BaseDir(),
		keysDir:   paths.KeysDir(),
		configDir: paths.ConfigDir(),
	}, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}

	if initCleanup {
		return cleanupQuantsmith(cmd.InOrStdin(), cmd.OutOrStdout(), layout)
	}
	return initEnvironment(cmd.OutOrStdout(), layout)
}

func initEnvironment(out io.Writer, layout initLayout) error {
	fmt.Fprintf(out, "Initializing quantsmith in: %s\n\n", layout.baseDir)

	dirs := []struct {
		path string
		desc string
	}{
		{layout.baseDir, "Base directory"},
		{layout.keysDir, "Keys directory"},
		{layout.configDir, "Configuration directory"},
	}

	for _, dir := range dirs {
		if err := createDirectory(out, dir.path, dir.desc); err != nil {
			return err
		}
	}

	if err := os.Chmod(layout.keysDir, 0700); err != nil {
		return fmt.Errorf("failed to secure keys directory: %w", err)
	}

	configPath := filepath.Join(layout.configDir, "config.yaml")
	if err := createConfigFile(out, configPath, layout); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n✅ quantsmith initialization complete!")
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'quantsmith convert --weights <checkpoint.pt>' to export and quantize a model")
	fmt.Fprintln(out, "  2. Run 'quantsmith verify <output-dir>' to check an artifact against its manifest")

	if initPath != "" {
		fmt.Fprintf(out, "\nNote: You initialized in a custom location: %s\n", layout.baseDir)
		fmt.Fprintf(out, "Set QUANTSMITH_HOME=%s and QUANTSMITH_CONFIG=%s to use it by default\n", layout.baseDir, layout.configDir)
	}

	return nil
}

func createDirectory(out io.Writer, path, description string) error {
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			fmt.Fprintf(out, "  ✓ %s already exists: %s\n", description, path)
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory: %s", description, path)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", description, err)
	}

	fmt.Fprintf(out, "  ✅ Created %s: %s\n", description, path)
	return nil
}

func createConfigFile(out io.Writer, configPath string, layout initLayout) error {
	if _, err := os.Stat(configPath); err == nil {
		if !initForce {
			fmt.Fprintf(out, "  ✓ Configuration already exists: %s\n", configPath)
			fmt.Fprintln(out, "    (use --force to overwrite)")
			return nil
		}
		fmt.Fprintln(out, "  ⚠️  Overwriting existing configuration")
	}

	configContent := fmt.Sprintf(`# quantsmith configuration
# Generated by 'quantsmith init'

output:
  dir: onnx

export:
  img_size: 1280
  batch: 1

quantize:
  mode: int8   # fp16, int8 or none

bench:
  samples: 0   # 0 skips the benchmark
  data: ""     # dataset yaml; synthetic inputs when empty
  threads: 0   # 0 = all cores

engine:
  python: python3

storage:
  base_dir: %s

security:
  sign_manifests: false
  keys_dir: %s

telemetry:
  endpoint: ""   # OTLP_ENDPOINT is also honored
  events_per_second: 10

log:
  level: info
  format: text

ui:
  progress_bar: true

server:
  addr: 127.0.0.1:8750
`, layout.baseDir, layout.keysDir)

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	fmt.Fprintf(out, "  ✅ Created configuration: %s\n", configPath)
	return nil
}

// cleanupQuantsmith removes the base and config directories after confirmation
func cleanupQuantsmith(in io.Reader, out io.Writer, layout initLayout) error {
	fmt.Fprintf(out, "Cleaning up quantsmith installation...\n\n")
	fmt.Fprintf(out, "⚠️  WARNING: This will remove:\n")
	fmt.Fprintf(out, "  - Base directory: %s\n", layout.baseDir)
	fmt.Fprintf(out, "  - Configuration: %s\n", layout.configDir)
	fmt.Fprintf(out, "\nThis action cannot be undone. Signing keys will be deleted.\n")
	fmt.Fprintf(out, "Are you sure? Type 'yes' to continue: ")

	response, _ := bufio.NewReader(in).ReadString('\n')
	if strings.TrimSpace(response) != "yes" {
		fmt.Fprintln(out, "Cleanup cancelled.")
		return nil
	}

	fmt.Fprintln(out)

	for _, dir := range []struct{ path, desc string }{
		{layout.baseDir, "Base directory"},
		{layout.configDir, "Configuration directory"},
	} {
		if err := removeDirectory(out, dir.path, dir.desc); err != nil {
			fmt.Fprintf(out, "  ⚠️  Failed to remove %s: %v\n", strings.ToLower(dir.desc), err)
		}
	}

	fmt.Fprintln(out, "\n✅ quantsmith cleanup complete!")
	return nil
}

// removeDirectory removes a directory and all its contents
func removeDirectory(out io.Writer, path, description string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(out, "  ✓ %s does not exist: %s\n", description, path)
		return nil
	}

	size := storage.DirSize(path)
	if err := os.RemoveAll(path); err != nil {
		return err
	}

	fmt.Fprintf(out, "  ✅ Removed %s: %s (%s)\n", description, path, ui.FormatBytes(size))
	return nil
}
