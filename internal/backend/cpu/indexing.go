package cpu

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Embedding gathers rows of weight [V, D] for int32 indices of any shape.
// Output shape is indices.Shape() + [D]. An index outside [0, V) panics;
// ids are never wrapped or clamped. paddingIdx only affects gradients.
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor, paddingIdx int) *tensor.RawTensor {
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("embedding: weight must be 2D [vocab, dim], got %v", wShape))
	}
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("embedding: indices must be int32, got %s", indices.DType()))
	}
	requireFloat32("embedding", weight)

	vocab, dim := wShape[0], wShape[1]
	outShape := append(indices.Shape().Clone(), dim)
	result := tensor.MustRaw(outShape, tensor.Float32, cpu.device)

	w, out := weight.AsFloat32(), result.AsFloat32()
	for i, id := range indices.AsInt32() {
		if id < 0 || int(id) >= vocab {
			panic(fmt.Sprintf("embedding: token id %d out of range [0, %d)", id, vocab))
		}
		copy(out[i*dim:(i+1)*dim], w[int(id)*dim:(int(id)+1)*dim])
	}
	return result
}

// Where selects x where condition is true and y elsewhere.
// condition must be bool; x and y share a dtype. All three broadcast.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	if condition.DType() != tensor.Bool {
		panic(fmt.Sprintf("where: condition must be bool, got %s", condition.DType()))
	}
	if x.DType() != y.DType() {
		panic(fmt.Sprintf("where: dtype mismatch %s vs %s", x.DType(), y.DType()))
	}

	shape, _, err := tensor.BroadcastShapes(condition.Shape(), x.Shape())
	if err == nil {
		shape, _, err = tensor.BroadcastShapes(shape, y.Shape())
	}
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}

	result := tensor.MustRaw(shape, x.DType(), cpu.device)
	outStrides := shape.ComputeStrides()
	cStrides := tensor.BroadcastStrides(condition.Shape(), shape)
	xStrides := tensor.BroadcastStrides(x.Shape(), shape)
	yStrides := tensor.BroadcastStrides(y.Shape(), shape)

	cond := condition.AsBool()
	size := x.DType().Size()
	xData, yData, dst := x.Data(), y.Data(), result.Data()
	for i := 0; i < result.NumElements(); i++ {
		src, strides := yData, yStrides
		if cond[flatIndex(i, outStrides, cStrides)] {
			src, strides = xData, xStrides
		}
		j := flatIndex(i, outStrides, strides)
		copy(dst[i*size:(i+1)*size], src[j*size:(j+1)*size])
	}
	return result
}
