// Package engine declares the collaborator boundaries the conversion pipeline
// drives: the model exporter, the dynamic quantizer, the half-precision caster
// and the inference engine. Adapters live in subpackages.
package engine

import (
	"context"
	"time"
)

// ExportRequest describes one fixed-shape export
type ExportRequest struct {
	Checkpoint string
	ImageSize  int
	Batch      int
	OutputDir  string
}

// ModelExporter materializes an intermediate graph file from a trained checkpoint
type ModelExporter interface {
	Export(ctx context.Context, req ExportRequest) (string, error)
}

// DynamicQuantizer writes a per-channel dynamically quantized int8 copy of src to dst
type DynamicQuantizer interface {
	QuantizeDynamic(ctx context.Context, src, dst string) error
}

// HalfCaster writes a copy of src with floating point tensors cast to half precision
type HalfCaster interface {
	CastFloat16(ctx context.Context, src, dst string) error
}

// Tensor is a dense float32 input in row-major order
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Len returns the number of elements implied by Shape
func (t Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// InferenceEngine loads artifacts into runnable sessions
type InferenceEngine interface {
	Load(ctx context.Context, path string, threads int) (Session, error)
}

// Session is a loaded model. Inputs are staged before timing so that Run
// measures only the forward pass.
type Session interface {
	// Stage materializes an input on the engine side and returns its slot
	Stage(ctx context.Context, input Tensor) (int, error)
	// Run executes one synchronous forward pass over a staged input. It
	// returns the engine-measured pass duration, or zero when the engine
	// does not measure it.
	Run(ctx context.Context, slot int) (time.Duration, error)
	Close() error
}
