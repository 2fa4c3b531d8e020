package ops

import "github.com/born-ml/seq2seq/internal/tensor"

// WhereOp represents output = where(condition, x, y).
//
// Backward: x receives the gradient where condition holds, y where it does
// not; both are summed back over broadcast dimensions. The boolean condition
// receives no gradient.
type WhereOp struct {
	inputs []*tensor.RawTensor // [condition, x, y]
	output *tensor.RawTensor
}

// NewWhereOp creates a new WhereOp.
func NewWhereOp(condition, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{
		inputs: []*tensor.RawTensor{condition, x, y},
		output: output,
	}
}

// Backward routes the gradient to the selected branch.
func (op *WhereOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cond, x, y := op.inputs[0], op.inputs[1], op.inputs[2]
	zero := zerosLike(tensor.Shape{1}, backend)

	gradX := backend.Where(cond, outputGrad, zero)
	gradY := backend.Where(cond, zero, outputGrad)

	return []*tensor.RawTensor{
		nil,
		reduceBroadcast(gradX, x.Shape(), backend),
		reduceBroadcast(gradY, y.Shape(), backend),
	}
}

// Inputs returns [condition, x, y].
func (op *WhereOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *WhereOp) Output() *tensor.RawTensor {
	return op.output
}
