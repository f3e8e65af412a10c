// Package catalog indexes the output directories below a root that carry a
// manifest.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Entry is one manifested output directory
type Entry struct {
	// Name is the directory relative to the catalog root, slash separated
	Name      string
	Dir       string
	Manifest  *types.Manifest
	Precision types.Precision
	// Size is the artifact size in bytes, or -1 when the file is gone
	Size int64
}

// Signed reports whether the manifest carries a signature
func (e *Entry) Signed() bool {
	return e.Manifest.Signature != ""
}

// Catalog holds the manifests found below a root directory
type Catalog struct {
	mu      sync.RWMutex
	root    string
	entries map[string]*Entry
	log     logrus.FieldLogger
}

// New creates a catalog over root and scans it
func New(root string, log logrus.FieldLogger) (*Catalog, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Catalog{
		root:    root,
		entries: make(map[string]*Entry),
		log:     log,
	}

	if err := c.Scan(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return c, nil
}

// Scan walks the root and records every directory holding a manifest.
// Unreadable manifests are skipped with a warning.
func (c *Catalog) Scan() error {
	info, err := os.Stat(c.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.root)
	}

	found := make(map[string]*Entry)

	err = filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		m, err := manifest.Read(path)
		if errors.Is(err, types.ErrManifestNotFound) {
			return nil
		}
		if err != nil {
			c.log.WithError(err).WithField("dir", path).Warn("skipping unreadable manifest")
			return nil
		}

		name, relErr := filepath.Rel(c.root, path)
		if relErr != nil {
			name = path
		}
		name = filepath.ToSlash(name)

		entry := &Entry{
			Name:      name,
			Dir:       path,
			Manifest:  m,
			Precision: types.PrecisionFromName(m.File),
			Size:      -1,
		}
		if st, err := os.Stat(manifest.ArtifactPath(path, m)); err == nil {
			entry.Size = st.Size()
		}
		found[name] = entry
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = found
	c.mu.Unlock()
	return nil
}

// Get returns the entry for a directory name relative to the root
func (c *Catalog) Get(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[strings.Trim(filepath.ToSlash(name), "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, types.ErrManifestNotFound)
	}
	return entry, nil
}

// List returns all entries ordered by name
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
