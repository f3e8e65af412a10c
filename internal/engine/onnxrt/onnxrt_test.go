package onnxrt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInterpreter writes an executable shell script standing in for python
func fakeInterpreter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a\n", 5))
	assert.Equal(t, "", lastLines("", 3))
	assert.Equal(t, "/out/best.onnx", lastLine("Ultralytics 8.2\nexporting...\n/out/best.onnx\n"))
}

func TestProbeHalfCaster(t *testing.T) {
	ctx := context.Background()

	missing := ProbeHalfCaster(ctx, NewToolchain(fakeInterpreter(t, "exit 1"), nil))
	assert.False(t, missing.IsAvailable())
	assert.Contains(t, missing.Reason(), "onnxconverter-common")

	present := ProbeHalfCaster(ctx, NewToolchain(fakeInterpreter(t, "exit 0"), nil))
	caster, ok := present.Get()
	require.True(t, ok)
	assert.NotNil(t, caster)
}

func TestExporterCopiesIntoOutputDir(t *testing.T) {
	srcDir := t.TempDir()
	produced := filepath.Join(srcDir, "best.onnx")
	require.NoError(t, os.WriteFile(produced, []byte("graph"), 0644))
	t.Setenv("FAKE_EXPORT_PATH", produced)

	tc := NewToolchain(fakeInterpreter(t, `echo "Ultralytics export"; echo "$FAKE_EXPORT_PATH"`), nil)
	outDir := t.TempDir()

	got, err := NewExporter(tc).Export(context.Background(), engine.ExportRequest{
		Checkpoint: filepath.Join(srcDir, "best.pt"),
		ImageSize:  640,
		Batch:      1,
		OutputDir:  outDir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "best.onnx"), got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "graph", string(data))
}

// chdir switches the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestExporterRelativeOutputInPlace(t *testing.T) {
	work := t.TempDir()
	chdir(t, work)
	require.NoError(t, os.MkdirAll("onnx", 0755))
	require.NoError(t, os.WriteFile(filepath.Join("onnx", "best.onnx"), []byte("graph bytes"), 0644))

	// $3 is the checkpoint argument after "-c <script>"
	argsFile := filepath.Join(work, "args")
	t.Setenv("FAKE_ARGS_FILE", argsFile)
	tc := NewToolchain(fakeInterpreter(t, `echo "$3" > "$FAKE_ARGS_FILE"; echo onnx/best.onnx`), nil)

	got, err := NewExporter(tc).Export(context.Background(), engine.ExportRequest{
		Checkpoint: filepath.Join("onnx", "best.pt"),
		ImageSize:  640,
		Batch:      1,
		OutputDir:  "onnx",
	})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "best.onnx", filepath.Base(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "graph bytes", string(data))

	ckpt, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(strings.TrimSpace(string(ckpt))), "checkpoint passed as %q", ckpt)
}

func TestCopyFileRefusesSameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.onnx")
	require.NoError(t, os.WriteFile(path, []byte("graph bytes"), 0644))

	err := copyFile(path, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onto itself")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "graph bytes", string(data))
}

func TestExporterMissingOutput(t *testing.T) {
	tc := NewToolchain(fakeInterpreter(t, `echo /does/not/exist.onnx`), nil)
	_, err := NewExporter(tc).Export(context.Background(), engine.ExportRequest{
		Checkpoint: "best.pt", ImageSize: 640, Batch: 1, OutputDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output missing")
}

func TestExporterEngineFailure(t *testing.T) {
	tc := NewToolchain(fakeInterpreter(t, `echo "unsupported op" >&2; exit 2`), nil)
	_, err := NewExporter(tc).Export(context.Background(), engine.ExportRequest{
		Checkpoint: "best.pt", ImageSize: 640, Batch: 1, OutputDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported op")
}

func TestQuantizerPropagatesFailure(t *testing.T) {
	tc := NewToolchain(fakeInterpreter(t, `echo "invalid graph" >&2; exit 1`), nil)
	err := NewQuantizer(tc).QuantizeDynamic(context.Background(), "a.onnx", "a_int8.onnx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid graph")
}

func TestRuntimeLoadFailure(t *testing.T) {
	tc := NewToolchain(fakeInterpreter(t, `echo '{"ok":false,"error":"invalid protobuf"}'`), nil)
	_, err := NewRuntime(tc).Load(context.Background(), "broken.onnx", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid protobuf")
}

func TestRuntimeRunAndClose(t *testing.T) {
	body := `echo '{"ok":true,"input":"images","type":"tensor(float)"}'
while read line; do
  echo '{"ok":true}'
done`
	tc := NewToolchain(fakeInterpreter(t, body), nil)

	sess, err := NewRuntime(tc).Load(context.Background(), "model.onnx", 4)
	require.NoError(t, err)
	assert.Equal(t, "images", sess.(*Session).InputName())

	elapsed, err := sess.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, elapsed)
	require.NoError(t, sess.Close())
	// Closing twice is a no-op
	require.NoError(t, sess.Close())
}

func TestStageRejectsShapeMismatch(t *testing.T) {
	s := &Session{}
	_, err := s.Stage(context.Background(), engine.Tensor{Shape: []int64{1, 3, 2, 2}, Data: make([]float32, 5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestRuntimeHalfPrecisionInputs(t *testing.T) {
	// Stage replies carry a slot; run replies carry the worker-side timing
	body := `echo '{"ok":true,"input":"images","type":"tensor(float16)"}'
while read line; do
  case "$line" in
    *'"op":"run"'*) echo '{"ok":true,"elapsed_ns":1500000}' ;;
    *) echo '{"ok":true,"slot":0}' ;;
  esac
done`
	tc := NewToolchain(fakeInterpreter(t, body), nil)

	sess, err := NewRuntime(tc).Load(context.Background(), "best_fp16.onnx", 1)
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, "tensor(float16)", sess.(*Session).InputType())

	elapsed, err := sess.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Microsecond, elapsed)
}

func TestWorkerCastsStagedInputsToGraphType(t *testing.T) {
	assert.Contains(t, workerScript, `"tensor(float16)": np.float16`)
	assert.Contains(t, workerScript, "arr.astype(in_dtype)")
	assert.Contains(t, workerScript, "perf_counter_ns")
}
