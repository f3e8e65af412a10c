package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "quantsmith"

// Paths manages the local state locations for quantsmith
type Paths struct {
	baseDir   string
	keysDir   string
	configDir string
}

// NewPaths resolves all locations from the environment
func NewPaths() (*Paths, error) {
	baseDir, err := DefaultBaseDir()
	if err != nil {
		return nil, err
	}

	configDir, err := DefaultConfigDir()
	if err != nil {
		return nil, err
	}

	return &Paths{
		baseDir:   baseDir,
		keysDir:   filepath.Join(baseDir, "keys"),
		configDir: configDir,
	}, nil
}

// DefaultBaseDir returns QUANTSMITH_HOME or ~/.quantsmith
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv("QUANTSMITH_HOME"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, "."+appName), nil
}

// DefaultConfigDir returns the directory searched for config.yaml
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv("QUANTSMITH_CONFIG"); dir != "" {
		return dir, nil
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", appName), nil
	default:
		return filepath.Join(home, ".config", appName), nil
	}
}

// Initialize creates all directories; the keys directory is private
func (p *Paths) Initialize() error {
	for _, dir := range []string{p.baseDir, p.configDir, p.keysDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.Chmod(p.keysDir, 0700); err != nil {
		return fmt.Errorf("failed to secure keys directory: %w", err)
	}

	return nil
}

// BaseDir returns the base directory
func (p *Paths) BaseDir() string {
	return p.baseDir
}

// KeysDir returns the signing key directory
func (p *Paths) KeysDir() string {
	return p.keysDir
}

// ConfigDir returns the config directory
func (p *Paths) ConfigDir() string {
	return p.configDir
}

// ConfigPath returns the main config file path
func (p *Paths) ConfigPath() string {
	return filepath.Join(p.configDir, "config.yaml")
}

// DirSize sums the sizes of regular files below path
func DirSize(path string) int64 {
	var size int64

	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
