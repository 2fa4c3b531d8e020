package ops

import (
	"math"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// CrossEntropyOp represents mean softmax cross-entropy of logits [N, C]
// against int32 targets [N].
//
// Backward (fused softmax + NLL):
//
//	∂L/∂logits[i, c] = grad * (softmax(logits[i])[c] - 1{c == target[i]}) / N
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Backward computes the logits gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	n, c := shape[0], shape[1]
	scale := outputGrad.AsFloat32()[0] / float32(n)

	grad := zerosLike(shape, backend)
	l, t, out := op.logits.AsFloat32(), op.targets.AsInt32(), grad.AsFloat32()
	for i := 0; i < n; i++ {
		row := l[i*c : (i+1)*c]
		maxVal := row[0]
		for _, v := range row[1:] {
			maxVal = max(maxVal, v)
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		for j, v := range row {
			p := float32(math.Exp(float64(v-maxVal)) / sum)
			if int32(j) == t[i] { //nolint:gosec // G115: j < c fits int32
				p--
			}
			out[i*c+j] = p * scale
		}
	}
	return []*tensor.RawTensor{grad, nil}
}

// Inputs returns [logits, targets].
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits, op.targets}
}

// Output returns the scalar loss tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}
