package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// SqrtOp represents output = sqrt(x).
//
// Backward: ∂L/∂x = grad / (2 * sqrt(x)), reusing the saved output.
type SqrtOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(input, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{input: input, output: output}
}

// Backward computes the square-root gradient.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	twice := backend.MulScalar(op.output, float32(2))
	return []*tensor.RawTensor{backend.Div(outputGrad, twice)}
}

// Inputs returns [input].
func (op *SqrtOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SqrtOp) Output() *tensor.RawTensor {
	return op.output
}
