package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// SoftmaxOp represents y = softmax(x) along the last dimension.
//
// Backward: ∂L/∂x = y * (grad - sum(grad * y, last)).
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(input, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{input: input, output: output, dim: dim}
}

// Backward computes the softmax Jacobian-vector product.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	dot := backend.SumDim(backend.Mul(outputGrad, y), op.dim, true)
	return []*tensor.RawTensor{backend.Mul(y, backend.Sub(outputGrad, dot))}
}

// Inputs returns [input].
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}
