package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDimension = errors.New("image dimension must be a positive integer")
	ErrInvalidBatch     = errors.New("batch size must be a positive integer")
	ErrInvalidSamples   = errors.New("sample count must be positive")
	ErrUnknownPrecision = errors.New("unknown precision mode")
	ErrNotFullPrecision = errors.New("precision reduction requires a full-precision artifact")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrDigestMismatch   = errors.New("artifact digest does not match manifest")
	ErrUnsigned         = errors.New("manifest is not signed")
)

// ExportError reports a checkpoint or export engine failure
type ExportError struct {
	Checkpoint string
	Err        error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Checkpoint, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// DependencyMissingError reports an optional capability that is not installed
type DependencyMissingError struct {
	Dependency string
	Hint       string
	Err        error
}

func (e *DependencyMissingError) Error() string {
	msg := fmt.Sprintf("missing dependency %s", e.Dependency)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyMissingError) Unwrap() error { return e.Err }

// QuantizationError reports a graph rejected by the precision reducer
type QuantizationError struct {
	Mode Precision
	Path string
	Err  error
}

func (e *QuantizationError) Error() string {
	return fmt.Sprintf("quantize %s to %s: %v", e.Path, e.Mode, e.Err)
}

func (e *QuantizationError) Unwrap() error { return e.Err }

// InferenceLoadError reports an artifact the inference engine cannot load
type InferenceLoadError struct {
	Path string
	Err  error
}

func (e *InferenceLoadError) Error() string {
	return fmt.Sprintf("load %s for inference: %v", e.Path, e.Err)
}

func (e *InferenceLoadError) Unwrap() error { return e.Err }

// InferenceRunError reports a forward pass that failed mid-benchmark
type InferenceRunError struct {
	Sample int
	Err    error
}

func (e *InferenceRunError) Error() string {
	return fmt.Sprintf("inference sample %d: %v", e.Sample, e.Err)
}

func (e *InferenceRunError) Unwrap() error { return e.Err }

// IOError reports a failed artifact or manifest read/write
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
