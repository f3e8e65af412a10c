package onnxrt

import (
	"context"
)

const quantizeDynamicScript = `
import sys
from onnxruntime.quantization import QuantType, quantize_dynamic
kwargs = dict(model_input=sys.argv[1], model_output=sys.argv[2], per_channel=True, weight_type=QuantType.QInt8)
try:
    quantize_dynamic(optimize_model=True, **kwargs)
except TypeError:
    # onnxruntime >= 1.16 always optimizes and dropped the flag
    quantize_dynamic(**kwargs)
`

const castFloat16Script = `
import sys
import onnx
from onnxconverter_common.float16 import convert_float_to_float16
onnx.save(convert_float_to_float16(onnx.load(sys.argv[1])), sys.argv[2])
`

const probeFloat16Script = `
import onnx
import onnxconverter_common
`

// Quantizer applies onnxruntime dynamic quantization (per-channel, QInt8 weights)
type Quantizer struct {
	tc *Toolchain
}

// NewQuantizer creates a quantizer bound to a toolchain
func NewQuantizer(tc *Toolchain) *Quantizer {
	return &Quantizer{tc: tc}
}

// QuantizeDynamic implements engine.DynamicQuantizer
func (q *Quantizer) QuantizeDynamic(ctx context.Context, src, dst string) error {
	_, err := q.tc.runScript(ctx, quantizeDynamicScript, src, dst)
	return err
}

// Caster converts graphs to float16 with onnxconverter-common
type Caster struct {
	tc *Toolchain
}

// CastFloat16 implements engine.HalfCaster
func (c *Caster) CastFloat16(ctx context.Context, src, dst string) error {
	_, err := c.tc.runScript(ctx, castFloat16Script, src, dst)
	return err
}
