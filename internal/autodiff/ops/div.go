package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// DivOp represents element-wise division: output = a / b.
//
// Backward: ∂L/∂a = grad / b, ∂L/∂b = -grad * a / b².
type DivOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{
		inputs: []*tensor.RawTensor{a, b},
		output: output,
	}
}

// Backward computes input gradients for division.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]

	gradA := backend.Div(outputGrad, b)
	// -grad * (a / b) / b == -grad * output / b
	gradB := backend.MulScalar(backend.Div(backend.Mul(outputGrad, op.output), b), float32(-1))

	return []*tensor.RawTensor{
		reduceBroadcast(gradA, a.Shape(), backend),
		reduceBroadcast(gradB, b.Shape(), backend),
	}
}

// Inputs returns the input tensors [a, b].
func (op *DivOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *DivOp) Output() *tensor.RawTensor {
	return op.output
}
