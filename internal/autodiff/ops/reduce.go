package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// SumDimOp represents output = sum(x, dim).
//
// Backward: the gradient is broadcast back along the reduced dimension.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{input: input, output: output, dim: dim, keepDim: keepDim}
}

// Backward broadcasts the gradient to the input shape.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{spreadReduced(outputGrad, op.input.Shape(), op.dim, op.keepDim, backend)}
}

// Inputs returns [input].
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}

// MeanDimOp represents output = mean(x, dim).
//
// Backward: the gradient is broadcast back and divided by the reduced size.
type MeanDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{input: input, output: output, dim: dim, keepDim: keepDim}
}

// Backward broadcasts the gradient and scales it by 1/n.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	n := shape[shape.NormalizeDim(op.dim)]
	grad := spreadReduced(outputGrad, shape, op.dim, op.keepDim, backend)
	return []*tensor.RawTensor{backend.MulScalar(grad, float32(1)/float32(n))}
}

// Inputs returns [input].
func (op *MeanDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MeanDimOp) Output() *tensor.RawTensor {
	return op.output
}

func spreadReduced(grad *tensor.RawTensor, shape tensor.Shape, dim int, keepDim bool, backend tensor.Backend) *tensor.RawTensor {
	if !keepDim {
		grad = backend.Reshape(grad, keepDimShape(shape, dim))
	}
	return expandTo(grad, shape, backend)
}
