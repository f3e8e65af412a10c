// Package manifest writes and verifies the provenance record that binds a
// final artifact's digest, creation time and benchmark metrics.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantsmith/quantsmith/internal/digest"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus"
)

// Signer attaches a signature to a manifest
type Signer interface {
	Sign(m *types.Manifest) error
}

// Writer persists manifests into an output directory
type Writer struct {
	signer Signer
	now    func() time.Time
	log    logrus.FieldLogger
}

// WriterOption customizes a Writer
type WriterOption func(*Writer)

// WithSigner signs every manifest before it is written
func WithSigner(s Signer) WriterOption {
	return func(w *Writer) { w.signer = s }
}

// WithClock replaces the time source for the created timestamp
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer
func NewWriter(log logrus.FieldLogger, opts ...WriterOption) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := &Writer{
		now: time.Now,
		log: log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the manifest location for an output directory
func Path(outDir string) string {
	return filepath.Join(outDir, types.ManifestFileName)
}

// Write hashes art, stamps the current UTC time and overwrites
// outDir/model.json. metrics nil encodes as {}. Nothing is written unless
// the digest completes; the file is replaced atomically.
func (w *Writer) Write(outDir string, art types.Artifact, metrics *types.BenchmarkMetrics) (*types.Manifest, error) {
	sum, err := digest.FileSHA256(art.Path)
	if err != nil {
		return nil, &types.IOError{Op: "hash", Path: art.Path, Err: err}
	}

	m := &types.Manifest{
		File:    art.Name(),
		SHA256:  sum,
		Created: types.FormatCreated(w.now()),
		Metrics: metrics,
	}

	if w.signer != nil {
		if err := w.signer.Sign(m); err != nil {
			return nil, fmt.Errorf("sign manifest: %w", err)
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := Path(outDir)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return nil, &types.IOError{Op: "write", Path: path, Err: err}
	}

	w.log.WithFields(logrus.Fields{
		"path":   path,
		"file":   m.File,
		"sha256": m.SHA256,
		"signed": m.Signature != "",
	}).Info("wrote manifest")

	return m, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Read loads the manifest from an output directory
func Read(outDir string) (*types.Manifest, error) {
	path := Path(outDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrManifestNotFound, path)
		}
		return nil, &types.IOError{Op: "read", Path: path, Err: err}
	}

	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// ArtifactPath resolves the file a manifest in outDir names
func ArtifactPath(outDir string, m *types.Manifest) string {
	if filepath.IsAbs(m.File) {
		return m.File
	}
	return filepath.Join(outDir, m.File)
}

// Verification is the outcome of recomputing a manifest's digest
type Verification struct {
	File     string `json:"file"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Valid    bool   `json:"valid"`
}

// Verify recomputes the digest of the artifact named by the manifest in
// outDir. A mismatch is reported both in the result and as ErrDigestMismatch.
func Verify(outDir string) (*types.Manifest, Verification, error) {
	m, err := Read(outDir)
	if err != nil {
		return nil, Verification{}, err
	}

	path := ArtifactPath(outDir, m)
	actual, err := digest.FileSHA256(path)
	if err != nil {
		return m, Verification{}, &types.IOError{Op: "hash", Path: path, Err: err}
	}

	v := Verification{
		File:     m.File,
		Expected: m.SHA256,
		Actual:   actual,
		Valid:    digest.Equal(m.SHA256, actual),
	}
	if !v.Valid {
		return m, v, fmt.Errorf("%w: %s", types.ErrDigestMismatch, m.File)
	}
	return m, v, nil
}
