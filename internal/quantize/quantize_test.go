package quantize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantsmith/quantsmith/internal/digest"
	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter writes dst as a marked copy of src
type fakeConverter struct {
	marker string
	err    error
	calls  int
}

func (f *fakeConverter) convert(src, dst string) error {
	f.calls++
	if f.err != nil {
		// Simulate a partially written output
		os.WriteFile(dst, []byte("partial"), 0644)
		return f.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append(data, []byte(f.marker)...), 0644)
}

func (f *fakeConverter) QuantizeDynamic(ctx context.Context, src, dst string) error {
	return f.convert(src, dst)
}

func (f *fakeConverter) CastFloat16(ctx context.Context, src, dst string) error {
	return f.convert(src, dst)
}

func fullArtifact(t *testing.T) types.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best.onnx")
	require.NoError(t, os.WriteFile(path, []byte("full-precision-graph"), 0644))
	return types.Artifact{Path: path, Precision: types.PrecisionFull}
}

func newReducer(q *fakeConverter, h *fakeConverter) *Reducer {
	half := types.Unavailable[engine.HalfCaster]("not installed")
	if h != nil {
		half = types.Available[engine.HalfCaster](h)
	}
	return NewReducer(q, half, nil)
}

func TestReduceNeverMutatesInput(t *testing.T) {
	for _, mode := range []types.Precision{types.PrecisionFP16, types.PrecisionInt8, types.PrecisionNone} {
		t.Run(string(mode), func(t *testing.T) {
			in := fullArtifact(t)
			before, err := digest.FileSHA256(in.Path)
			require.NoError(t, err)

			_, err = newReducer(&fakeConverter{marker: "q"}, &fakeConverter{marker: "h"}).Reduce(context.Background(), in, mode)
			require.NoError(t, err)

			after, err := digest.FileSHA256(in.Path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestReduceNoneIsIdentity(t *testing.T) {
	in := fullArtifact(t)
	q := &fakeConverter{}

	out, err := newReducer(q, nil).Reduce(context.Background(), in, types.PrecisionNone)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, q.calls)

	entries, err := os.ReadDir(filepath.Dir(in.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no new file written")
}

func TestReduceInt8(t *testing.T) {
	in := fullArtifact(t)
	q := &fakeConverter{marker: "-int8"}

	out, err := newReducer(q, nil).Reduce(context.Background(), in, types.PrecisionInt8)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(in.Path), "best_int8.onnx"), out.Path)
	assert.Equal(t, types.PrecisionInt8, out.Precision)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "full-precision-graph-int8", string(data))
	assert.Equal(t, 1, q.calls)
}

func TestReduceFP16(t *testing.T) {
	in := fullArtifact(t)
	h := &fakeConverter{marker: "-fp16"}

	out, err := newReducer(&fakeConverter{}, h).Reduce(context.Background(), in, types.PrecisionFP16)
	require.NoError(t, err)
	assert.Equal(t, "best_fp16.onnx", out.Name())
	assert.FileExists(t, out.Path)
	assert.Equal(t, 1, h.calls)
}

func TestReduceFP16DependencyMissing(t *testing.T) {
	in := fullArtifact(t)

	_, err := newReducer(&fakeConverter{}, nil).Reduce(context.Background(), in, types.PrecisionFP16)
	require.Error(t, err)

	var depErr *types.DependencyMissingError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "onnxconverter-common", depErr.Dependency)
	assert.NoFileExists(t, in.Derive(types.PrecisionFP16).Path)
}

func TestReduceQuantizerFailure(t *testing.T) {
	in := fullArtifact(t)
	q := &fakeConverter{err: errors.New("malformed graph")}

	_, err := newReducer(q, nil).Reduce(context.Background(), in, types.PrecisionInt8)
	require.Error(t, err)

	var qErr *types.QuantizationError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, types.PrecisionInt8, qErr.Mode)
	assert.NoFileExists(t, in.Derive(types.PrecisionInt8).Path, "partial output removed")
	assert.Equal(t, 1, q.calls)
}

func TestReduceRejectsNonFullInput(t *testing.T) {
	in := fullArtifact(t)
	in.Precision = types.PrecisionInt8

	_, err := newReducer(&fakeConverter{}, nil).Reduce(context.Background(), in, types.PrecisionInt8)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFullPrecision))
}

func TestReduceUnknownMode(t *testing.T) {
	_, err := newReducer(&fakeConverter{}, nil).Reduce(context.Background(), fullArtifact(t), types.Precision("int4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnknownPrecision))
}
