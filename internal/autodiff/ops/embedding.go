package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// EmbeddingOp represents a row lookup: output[..., :] = weight[indices[...], :].
//
// Backward scatters the output gradient into a zero [V, D] tensor. Rows for
// paddingIdx are skipped, so the padding vector never changes under
// gradient-based updates.
type EmbeddingOp struct {
	weight     *tensor.RawTensor
	indices    *tensor.RawTensor
	output     *tensor.RawTensor
	paddingIdx int
}

// NewEmbeddingOp creates a new EmbeddingOp. paddingIdx < 0 disables masking.
func NewEmbeddingOp(weight, indices, output *tensor.RawTensor, paddingIdx int) *EmbeddingOp {
	return &EmbeddingOp{weight: weight, indices: indices, output: output, paddingIdx: paddingIdx}
}

// Backward accumulates gradients per looked-up row.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dim := op.weight.Shape()[1]
	grad := zerosLike(op.weight.Shape(), backend)

	g, out := outputGrad.AsFloat32(), grad.AsFloat32()
	for i, id := range op.indices.AsInt32() {
		if int(id) == op.paddingIdx {
			continue
		}
		row := out[int(id)*dim : (int(id)+1)*dim]
		for j, v := range g[i*dim : (i+1)*dim] {
			row[j] += v
		}
	}
	return []*tensor.RawTensor{grad, nil}
}

// Inputs returns [weight, indices].
func (op *EmbeddingOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.weight, op.indices}
}

// Output returns the output tensor.
func (op *EmbeddingOp) Output() *tensor.RawTensor {
	return op.output
}
