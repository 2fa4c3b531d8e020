package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// ReLUOp represents output = max(0, x).
//
// Backward: ∂L/∂x = grad where x > 0, else 0.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

// Backward masks the gradient by the sign of the input.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustRaw(op.input.Shape(), tensor.Float32, backend.Device())
	g, x, out := outputGrad.AsFloat32(), op.input.AsFloat32(), grad.AsFloat32()
	for i, v := range x {
		if v > 0 {
			out[i] = g[i]
		}
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns [input].
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}
