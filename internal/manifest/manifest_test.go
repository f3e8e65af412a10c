package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantsmith/quantsmith/internal/digest"
	"github.com/quantsmith/quantsmith/internal/signing"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 6, 1, 9, 30, 0, 250000000, time.UTC)

func writeArtifact(t *testing.T, dir, name, content string) types.Artifact {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return types.Artifact{Path: path, Precision: types.PrecisionFromName(name)}
}

func clock() time.Time { return fixedTime }

func TestWriteWithoutMetrics(t *testing.T) {
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best_int8.onnx", "quantized")

	m, err := NewWriter(nil, WithClock(clock)).Write(dir, art, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "model.json"))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "best_int8.onnx", raw["file"])
	assert.Equal(t, "2024-06-01T09:30:00.250000Z", raw["created"])
	assert.Equal(t, map[string]interface{}{}, raw["metrics"])
	assert.NotContains(t, raw, "signature")

	want, err := digest.FileSHA256(art.Path)
	require.NoError(t, err)
	assert.Equal(t, want, raw["sha256"])
	assert.Equal(t, want, m.SHA256)

	// Pretty-printed
	assert.Contains(t, string(data), "\n  \"file\"")
}

func TestWriteWithMetrics(t *testing.T) {
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best.onnx", "full")
	metrics := &types.BenchmarkMetrics{MedianMs: 8.5, P95Ms: 9.75, Samples: 50}

	_, err := NewWriter(nil).Write(dir, art, metrics)
	require.NoError(t, err)

	m, err := Read(dir)
	require.NoError(t, err)
	require.NotNil(t, m.Metrics)
	assert.Equal(t, *metrics, *m.Metrics)

	created, err := m.CreatedAt()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func TestWriteOverwritesPreviousManifest(t *testing.T) {
	dir := t.TempDir()
	first := writeArtifact(t, dir, "a.onnx", "first")
	second := writeArtifact(t, dir, "b.onnx", "second")

	_, err := NewWriter(nil).Write(dir, first, &types.BenchmarkMetrics{MedianMs: 1, P95Ms: 2, Samples: 3})
	require.NoError(t, err)
	_, err = NewWriter(nil).Write(dir, second, nil)
	require.NoError(t, err)

	m, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "b.onnx", m.File)
	assert.Nil(t, m.Metrics)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestWriteMissingArtifactWritesNothing(t *testing.T) {
	dir := t.TempDir()
	art := types.Artifact{Path: filepath.Join(dir, "gone.onnx"), Precision: types.PrecisionFull}

	_, err := NewWriter(nil).Write(dir, art, nil)
	require.Error(t, err)

	var ioErr *types.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "hash", ioErr.Op)
	assert.NoFileExists(t, Path(dir))
}

func TestWriteUnwritableDirectory(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best.onnx", "x")
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	_, err := NewWriter(nil).Write(dir, art, nil)
	var ioErr *types.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
}

func TestWriteSigned(t *testing.T) {
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best_fp16.onnx", "half")

	keys, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	_, err = NewWriter(nil, WithSigner(keys)).Write(dir, art, nil)
	require.NoError(t, err)

	m, err := Read(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Signature)
	assert.NoError(t, signing.VerifyManifest(m, keys.PublicKey))
}

type failingSigner struct{}

func (failingSigner) Sign(*types.Manifest) error { return errors.New("hsm offline") }

func TestWriteSignerFailure(t *testing.T) {
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best.onnx", "x")

	_, err := NewWriter(nil, WithSigner(failingSigner{})).Write(dir, art, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsm offline")
	assert.NoFileExists(t, Path(dir))
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.True(t, errors.Is(err, types.ErrManifestNotFound))
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	art := writeArtifact(t, dir, "best_int8.onnx", "quantized")
	_, err := NewWriter(nil).Write(dir, art, nil)
	require.NoError(t, err)

	_, v, err := Verify(dir)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, v.Expected, v.Actual)

	// Tamper with a single byte
	require.NoError(t, os.WriteFile(art.Path, []byte("quantizeD"), 0644))
	_, v, err = Verify(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDigestMismatch))
	assert.False(t, v.Valid)
	assert.NotEqual(t, v.Expected, v.Actual)
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a.onnx"), ArtifactPath("out", &types.Manifest{File: "a.onnx"}))
	assert.Equal(t, "/abs/a.onnx", ArtifactPath("out", &types.Manifest{File: "/abs/a.onnx"}))
}
