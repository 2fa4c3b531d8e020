package cpu

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/parallel"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// MatMul performs matrix multiplication: (M, K) @ (K, N) -> (M, N).
// Rows of the output are split across workers once M is large enough.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}
	requireFloat32("matmul", a)
	requireFloat32("matmul", b)

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := tensor.MustRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	c, aData, bData := result.AsFloat32(), a.AsFloat32(), b.AsFloat32()
	parallel.For(m, func(i int) {
		matmulRow(c[i*n:(i+1)*n], aData[i*k:(i+1)*k], bData, k, n)
	}, cpu.par)
	return result
}

// BatchMatMul performs batched matrix multiplication.
//
// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
//
// All leading dimensions must match. Each (batch, head) matrix is an
// independent unit of work for the worker pool.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()
	ndim := len(aShape)

	if ndim < 3 || ndim > 4 {
		panic(fmt.Sprintf("BatchMatMul: inputs must be 3D or 4D, got %dD", ndim))
	}
	if len(bShape) != ndim {
		panic(fmt.Sprintf("BatchMatMul: dimension mismatch, got %dD and %dD", ndim, len(bShape)))
	}
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != bShape[i] {
			panic(fmt.Sprintf("BatchMatMul: batch dimension mismatch at dim %d: %d vs %d", i, aShape[i], bShape[i]))
		}
	}
	requireFloat32("BatchMatMul", a)
	requireFloat32("BatchMatMul", b)

	m, k := aShape[ndim-2], aShape[ndim-1]
	k2, n := bShape[ndim-2], bShape[ndim-1]
	if k != k2 {
		panic(fmt.Sprintf("BatchMatMul: inner dimension mismatch: %d vs %d", k, k2))
	}

	batch := 1
	for i := 0; i < ndim-2; i++ {
		batch *= aShape[i]
	}

	outShape := make(tensor.Shape, ndim)
	copy(outShape, aShape[:ndim-2])
	outShape[ndim-2] = m
	outShape[ndim-1] = n

	result := tensor.MustRaw(outShape, tensor.Float32, cpu.device)
	c, aData, bData := result.AsFloat32(), a.AsFloat32(), b.AsFloat32()
	sizeA, sizeB, sizeC := m*k, k*n, m*n
	parallel.For(batch, func(bi int) {
		am := aData[bi*sizeA : (bi+1)*sizeA]
		bm := bData[bi*sizeB : (bi+1)*sizeB]
		cm := c[bi*sizeC : (bi+1)*sizeC]
		for i := 0; i < m; i++ {
			matmulRow(cm[i*n:(i+1)*n], am[i*k:(i+1)*k], bm, k, n)
		}
	}, cpu.par)
	return result
}

// matmulRow computes one output row: c[j] = sum_p a[p] * b[p, j].
// The i-p-j loop order walks b row by row.
func matmulRow(c, a, b []float32, k, n int) {
	for j := range c {
		c[j] = 0
	}
	for p := 0; p < k; p++ {
		av := a[p]
		row := b[p*n : (p+1)*n]
		for j, bv := range row {
			c[j] += av * bv
		}
	}
}
