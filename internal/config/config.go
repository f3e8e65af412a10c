package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantsmith/quantsmith/internal/storage"
	"github.com/spf13/viper"
)

// Config represents the quantsmith configuration
type Config struct {
	Output    OutputConfig    `mapstructure:"output"`
	Export    ExportConfig    `mapstructure:"export"`
	Quantize  QuantizeConfig  `mapstructure:"quantize"`
	Bench     BenchConfig     `mapstructure:"bench"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Security  SecurityConfig  `mapstructure:"security"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	UI        UIConfig        `mapstructure:"ui"`
	Server    ServerConfig    `mapstructure:"server"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type ExportConfig struct {
	ImgSize int `mapstructure:"img_size"`
	Batch   int `mapstructure:"batch"`
}

type QuantizeConfig struct {
	Mode string `mapstructure:"mode"`
}

type BenchConfig struct {
	Samples int    `mapstructure:"samples"`
	Data    string `mapstructure:"data"`
	// Threads 0 means runtime.NumCPU
	Threads int `mapstructure:"threads"`
}

type EngineConfig struct {
	Python string `mapstructure:"python"`
}

type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

type SecurityConfig struct {
	SignManifests bool   `mapstructure:"sign_manifests"`
	KeysDir       string `mapstructure:"keys_dir"`
}

type TelemetryConfig struct {
	Endpoint        string  `mapstructure:"endpoint"`
	EventsPerSecond float64 `mapstructure:"events_per_second"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UIConfig struct {
	ProgressBar bool `mapstructure:"progress_bar"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	cfg *Config
	v   *viper.Viper
)

// Initialize sets up the configuration. configFile overrides the search path
// when non-empty.
func Initialize(configFile string) error {
	v = viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
		v.AddConfigPath(".")
		if configDir, err := storage.DefaultConfigDir(); err == nil {
			v.AddConfigPath(configDir)
		}
	}

	setDefaults(v)

	// QUANTSMITH_BENCH_SAMPLES -> bench.samples
	v.SetEnvPrefix("QUANTSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telemetry.endpoint", "QUANTSMITH_TELEMETRY_ENDPOINT", "OTLP_ENDPOINT"); err != nil {
		return fmt.Errorf("error binding telemetry endpoint: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Reload()
}

// Reload re-reads the viper state into the Config struct, e.g. after
// command flags have been bound.
func Reload() error {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	expandPaths(c)
	cfg = c
	return nil
}

// setDefaults sets all default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", "onnx")

	v.SetDefault("export.img_size", 1280)
	v.SetDefault("export.batch", 1)

	v.SetDefault("quantize.mode", "int8")

	v.SetDefault("bench.samples", 0)
	v.SetDefault("bench.data", "")
	v.SetDefault("bench.threads", 0)

	v.SetDefault("engine.python", "python3")

	v.SetDefault("storage.base_dir", getDefaultBaseDir())

	v.SetDefault("security.sign_manifests", false)
	v.SetDefault("security.keys_dir", "") // Will be set to base_dir/keys

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.events_per_second", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ui.progress_bar", true)

	v.SetDefault("server.addr", "127.0.0.1:8750")
}

func getDefaultBaseDir() string {
	dir, err := storage.DefaultBaseDir()
	if err != nil {
		return ".quantsmith"
	}
	return dir
}

// expandPaths expands user paths and fills derived directories
func expandPaths(cfg *Config) {
	if cfg.Storage.BaseDir != "" {
		cfg.Storage.BaseDir = expandPath(cfg.Storage.BaseDir)
	}

	if cfg.Security.KeysDir == "" {
		cfg.Security.KeysDir = filepath.Join(cfg.Storage.BaseDir, "keys")
	} else {
		cfg.Security.KeysDir = expandPath(cfg.Security.KeysDir)
	}

	cfg.Output.Dir = expandPath(cfg.Output.Dir)
	cfg.Bench.Data = expandPath(cfg.Bench.Data)
}

// expandPath expands ~ and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// GetViper returns the viper instance
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized")
	}
	return v
}

// CreateAllDirs creates the base and keys directories
func CreateAllDirs() error {
	for _, dir := range []string{cfg.Storage.BaseDir, cfg.Security.KeysDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.Chmod(cfg.Security.KeysDir, 0700); err != nil {
		return fmt.Errorf("failed to secure keys directory: %w", err)
	}

	return nil
}
