package cpu

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Reshape returns a contiguous copy of t with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.WithShape(newShape)
}

// Transpose permutes dimensions. With no axes it reverses them.
// Works on any dtype by moving whole elements.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}
	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid permutation %v", axes))
		}
		seen[ax] = true
	}

	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		outShape[i] = shape[ax]
	}
	result := tensor.MustRaw(outShape, t.DType(), cpu.device)

	inStrides := t.Strides()
	// Stride in the input for each output dimension.
	permStrides := make([]int, ndim)
	for i, ax := range axes {
		permStrides[i] = inStrides[ax]
	}
	outStrides := outShape.ComputeStrides()

	size := t.DType().Size()
	src, dst := t.Data(), result.Data()
	n := t.NumElements()
	for i := 0; i < n; i++ {
		j := flatIndex(i, outStrides, permStrides)
		copy(dst[i*size:(i+1)*size], src[j*size:(j+1)*size])
	}
	return result
}
