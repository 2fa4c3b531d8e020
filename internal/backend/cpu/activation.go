package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Softmax computes a numerically stable softmax along the last dimension.
// Tensors of any rank are treated as rows of the last dimension.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	if shape.NormalizeDim(dim) != len(shape)-1 {
		panic(fmt.Sprintf("softmax: only the last dimension is supported, got dim=%d for shape %v", dim, shape))
	}
	requireFloat32("softmax", x)

	cols := shape[len(shape)-1]
	result := tensor.MustRaw(shape, tensor.Float32, cpu.device)
	in, out := x.AsFloat32(), result.AsFloat32()
	for start := 0; start < len(in); start += cols {
		softmaxRow(out[start:start+cols], in[start:start+cols])
	}
	return result
}

func softmaxRow(out, in []float32) {
	maxVal := in[0]
	for _, v := range in[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for j, v := range in {
		e := math.Exp(float64(v - maxVal))
		out[j] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for j := range out {
		out[j] *= inv
	}
}
