package ops

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// reduceBroadcast sums a gradient back down to targetShape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}

	result := grad
	// Leading dimensions that the target does not have.
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}
	for i, dim := range targetShape {
		if dim == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// expandTo broadcasts grad (with the reduced axis kept as size 1) back to shape.
func expandTo(grad *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	return backend.Add(zerosLike(shape, backend), grad)
}

// keepDimShape returns shape with dim set to 1.
func keepDimShape(shape tensor.Shape, dim int) tensor.Shape {
	out := shape.Clone()
	out[shape.NormalizeDim(dim)] = 1
	return out
}

func zerosLike(shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	return tensor.MustRaw(shape, tensor.Float32, backend.Device())
}

// swapLast2 returns the permutation exchanging the two trailing axes.
func swapLast2(ndim int) []int {
	if ndim < 2 {
		panic(fmt.Sprintf("swapLast2: need at least 2 dims, got %d", ndim))
	}
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	return axes
}
