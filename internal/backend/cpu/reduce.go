package cpu

import (
	"github.com/born-ml/seq2seq/internal/tensor"
)

// SumDim sums along dim. With keepDim the reduced axis stays with size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	requireFloat32("SumDim", x)
	outer, size, inner, outShape := splitDim(x.Shape(), dim, keepDim)

	result := tensor.MustRaw(outShape, tensor.Float32, cpu.device)
	in, out := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var sum float32
			for d := 0; d < size; d++ {
				sum += in[(o*size+d)*inner+i]
			}
			out[o*inner+i] = sum
		}
	}
	return result
}

// MeanDim averages along dim. With keepDim the reduced axis stays with size 1.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	size := x.Shape()[x.Shape().NormalizeDim(dim)]
	return cpu.MulScalar(cpu.SumDim(x, dim, keepDim), float32(1)/float32(size))
}

// Argmax returns int32 indices of the maximum along dim; the axis is removed.
// Ties resolve to the lowest index.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("Argmax", x)
	outer, size, inner, outShape := splitDim(x.Shape(), dim, false)

	result := tensor.MustRaw(outShape, tensor.Int32, cpu.device)
	in, out := x.AsFloat32(), result.AsInt32()
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			best := 0
			bestVal := in[o*size*inner+i]
			for d := 1; d < size; d++ {
				if v := in[(o*size+d)*inner+i]; v > bestVal {
					best, bestVal = d, v
				}
			}
			out[o*inner+i] = int32(best) //nolint:gosec // G115: bounded by dimension size
		}
	}
	return result
}

// splitDim views shape as [outer, size, inner] around dim and returns the
// reduced output shape.
func splitDim(shape tensor.Shape, dim int, keepDim bool) (outer, size, inner int, outShape tensor.Shape) {
	dim = shape.NormalizeDim(dim)
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	size = shape[dim]

	outShape = make(tensor.Shape, 0, len(shape))
	outShape = append(outShape, shape[:dim]...)
	if keepDim {
		outShape = append(outShape, 1)
	}
	outShape = append(outShape, shape[dim+1:]...)
	return outer, size, inner, outShape
}
