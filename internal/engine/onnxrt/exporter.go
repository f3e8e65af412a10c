package onnxrt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quantsmith/quantsmith/internal/engine"
)

const exportScript = `
import sys
from ultralytics import YOLO
pt, imgsz, batch, project, name = sys.argv[1], int(sys.argv[2]), int(sys.argv[3]), sys.argv[4], sys.argv[5]
path = YOLO(pt).export(format="onnx", imgsz=imgsz, batch=batch, dynamic=False, simplify=True, project=project, name=name, exist_ok=True)
print(path)
`

// Exporter runs the ultralytics ONNX export
type Exporter struct {
	tc *Toolchain
}

// NewExporter creates an exporter bound to a toolchain
func NewExporter(tc *Toolchain) *Exporter {
	return &Exporter{tc: tc}
}

// Export implements engine.ModelExporter. The engine may write its result
// next to the checkpoint; the file is then copied into the output directory.
func (e *Exporter) Export(ctx context.Context, req engine.ExportRequest) (string, error) {
	outDir, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return "", err
	}
	checkpoint, err := filepath.Abs(req.Checkpoint)
	if err != nil {
		return "", err
	}

	stdout, err := e.tc.runScript(ctx, exportScript,
		checkpoint,
		strconv.Itoa(req.ImageSize),
		strconv.Itoa(req.Batch),
		filepath.Dir(outDir),
		filepath.Base(outDir),
	)
	if err != nil {
		return "", err
	}

	reported := lastLine(stdout)
	if reported == "" {
		return "", fmt.Errorf("export engine reported no output path")
	}
	// Relative paths are relative to the shared working directory
	produced, err := filepath.Abs(reported)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(produced); err != nil {
		return "", fmt.Errorf("export engine output missing: %w", err)
	}

	if filepath.Dir(produced) == outDir {
		return produced, nil
	}

	dst := filepath.Join(outDir, filepath.Base(produced))
	if sameFile(produced, dst) {
		return dst, nil
	}
	if err := copyFile(produced, dst); err != nil {
		return "", fmt.Errorf("collect export output: %w", err)
	}
	return dst, nil
}

// copyFile copies src to dst and refuses when both name the same file,
// since truncating dst would empty src.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return err
	}
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return fmt.Errorf("refusing to copy %s onto itself", src)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
