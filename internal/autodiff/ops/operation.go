// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps the inputs and output of its forward pass and maps an
// output gradient to input gradients in Backward. Backward receives the
// backend to compute with; the tape stops recording while it runs, so these
// computations never land on the tape themselves.
//
// Supported operations:
//   - AddOp, SubOp, MulOp, DivOp: element-wise with broadcasting
//   - MatMulOp, BatchMatMulOp: (d(A@B)/dA = grad@Bᵀ, d(A@B)/dB = Aᵀ@grad)
//   - ReshapeOp, TransposeOp: shape bookkeeping
//   - MulScalarOp, AddScalarOp, SqrtOp, ReLUOp, SoftmaxOp
//   - SumDimOp, MeanDimOp: reductions
//   - WhereOp: masked selection (attention masking)
//   - EmbeddingOp: row gather with a frozen padding row
//   - CrossEntropyOp: fused softmax + negative log-likelihood
package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The result is aligned with Inputs(); a nil entry means no gradient
	// flows to that input (e.g. integer indices or boolean masks).
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
