package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T, dir, file string, metrics *types.BenchmarkMetrics) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte("graph "+file), 0644))

	log, _ := test.NewNullLogger()
	w := manifest.NewWriter(log, manifest.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	_, err := w.Write(dir, types.Artifact{Path: path, Precision: types.PrecisionFromName(file)}, metrics)
	require.NoError(t, err)
}

func TestScanFindsManifests(t *testing.T) {
	root := t.TempDir()
	writeOutput(t, filepath.Join(root, "yolov9", "int8"), "best_int8.onnx", &types.BenchmarkMetrics{MedianMs: 3, P95Ms: 5, Samples: 10})
	writeOutput(t, filepath.Join(root, "yolov9", "full"), "best.onnx", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	log, _ := test.NewNullLogger()
	c, err := New(root, log)
	require.NoError(t, err)

	entries := c.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "yolov9/full", entries[0].Name)
	assert.Equal(t, "yolov9/int8", entries[1].Name)

	assert.Equal(t, types.PrecisionFull, entries[0].Precision)
	assert.Nil(t, entries[0].Manifest.Metrics)
	assert.Equal(t, types.PrecisionInt8, entries[1].Precision)
	assert.Equal(t, 10, entries[1].Manifest.Metrics.Samples)
	assert.Equal(t, int64(len("graph best_int8.onnx")), entries[1].Size)
	assert.False(t, entries[1].Signed())
}

func TestScanRootManifest(t *testing.T) {
	root := t.TempDir()
	writeOutput(t, root, "best.onnx", nil)

	c, err := New(root, nil)
	require.NoError(t, err)

	e, err := c.Get(".")
	require.NoError(t, err)
	assert.Equal(t, "best.onnx", e.Manifest.File)
}

func TestScanMissingArtifactAndBadManifest(t *testing.T) {
	root := t.TempDir()
	writeOutput(t, filepath.Join(root, "gone"), "best.onnx", nil)
	require.NoError(t, os.Remove(filepath.Join(root, "gone", "best.onnx")))

	bad := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(bad, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, types.ManifestFileName), []byte("{not json"), 0644))

	log, hook := test.NewNullLogger()
	c, err := New(root, log)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	e, err := c.Get("gone")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), e.Size)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "skipping unreadable manifest", hook.LastEntry().Message)
}

func TestGetUnknown(t *testing.T) {
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = c.Get("nope")
	assert.True(t, errors.Is(err, types.ErrManifestNotFound))
}

func TestRescanPicksUpNewOutputs(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	writeOutput(t, filepath.Join(root, "run1"), "best_fp16.onnx", nil)
	require.NoError(t, c.Scan())
	assert.Equal(t, 1, c.Len())
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
