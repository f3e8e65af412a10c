package bench

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantsmith/quantsmith/pkg/types"
	"gopkg.in/yaml.v3"
)

// Dataset is the subset of a YOLO dataset descriptor used for benchmarking
type Dataset struct {
	// Root is the descriptor's optional path key
	Root string `yaml:"path"`
	// Val is a directory or list of directories with validation images
	Val interface{} `yaml:"val"`

	dir string
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// LoadDataset parses a descriptor file
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset descriptor: %w", err)
	}
	if ds.Val == nil {
		return nil, fmt.Errorf("dataset descriptor %s has no val key", path)
	}
	ds.dir = filepath.Dir(path)
	return &ds, nil
}

// ResolveDataset returns the dataset as an optional capability. An empty,
// missing or unreadable descriptor is Unavailable.
func ResolveDataset(path string) types.Capability[*Dataset] {
	if path == "" {
		return types.Unavailable[*Dataset]("no dataset descriptor given")
	}
	ds, err := LoadDataset(path)
	if err != nil {
		return types.Unavailable[*Dataset](err.Error())
	}
	return types.Available(ds)
}

// ValDirs resolves the validation directories. Relative entries are joined
// to the descriptor's path key, or to the descriptor's directory.
func (d *Dataset) ValDirs() ([]string, error) {
	var entries []string
	switch v := d.Val.(type) {
	case string:
		entries = []string{v}
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("val entry %v is not a path", item)
			}
			entries = append(entries, s)
		}
	default:
		return nil, fmt.Errorf("val has unsupported type %T", d.Val)
	}

	base := d.dir
	if d.Root != "" {
		base = d.Root
		if !filepath.IsAbs(base) {
			base = filepath.Join(d.dir, base)
		}
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if !filepath.IsAbs(e) {
			e = filepath.Join(base, e)
		}
		dirs = append(dirs, e)
	}
	return dirs, nil
}

// ImagePaths lists every jpg/jpeg/png file under the validation directories
func (d *Dataset) ImagePaths() ([]string, error) {
	dirs, err := d.ValDirs()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			if imageExts[strings.ToLower(filepath.Ext(path))] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}
	return paths, nil
}
