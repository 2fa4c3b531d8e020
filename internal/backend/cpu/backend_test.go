package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/seq2seq/internal/parallel"
	"github.com/born-ml/seq2seq/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(t *testing.T, backend *CPUBackend, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x.Raw()
}

func i32(t *testing.T, backend *CPUBackend, data []int32, shape ...int) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x.Raw()
}

func TestCPUBackend_Metadata(t *testing.T) {
	backend := New()
	if backend.Name() != "CPU" {
		t.Errorf("Name() = %s, want CPU", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", backend.Device())
	}
}

func TestAdd_Broadcast(t *testing.T) {
	backend := New()
	a := f32(t, backend, []float32{1, 2, 3}, 3, 1)
	b := f32(t, backend, []float32{10, 20}, 1, 2)

	out := backend.Add(a, b)

	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{11, 21, 12, 22, 13, 23}, out.AsFloat32())
}

func TestBinary_DoesNotMutateInputs(t *testing.T) {
	backend := New()
	a := f32(t, backend, []float32{1, 2}, 2)
	b := f32(t, backend, []float32{3, 4}, 2)

	_ = backend.Sub(a, b)
	_ = backend.Mul(a, b)
	_ = backend.Div(a, b)

	assert.Equal(t, []float32{1, 2}, a.AsFloat32())
	assert.Equal(t, []float32{3, 4}, b.AsFloat32())
}

func TestBinary_IncompatibleShapesPanic(t *testing.T) {
	backend := New()
	a := f32(t, backend, []float32{1, 2, 3}, 3)
	b := f32(t, backend, []float32{1, 2}, 2)
	assert.Panics(t, func() { backend.Add(a, b) })
}

func TestMatMul(t *testing.T) {
	backend := New()
	a := f32(t, backend, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, backend, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := backend.MatMul(a, b)

	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMul_ParallelMatchesSequential(t *testing.T) {
	seq := NewWithConfig(parallel.Sequential())
	par := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	m, k, n := 37, 11, 5
	aData := make([]float32, m*k)
	bData := make([]float32, k*n)
	for i := range aData {
		aData[i] = float32(i%7) - 3
	}
	for i := range bData {
		bData[i] = float32(i%5) * 0.5
	}

	want := seq.MatMul(f32(t, seq, aData, m, k), f32(t, seq, bData, k, n)).AsFloat32()
	got := par.MatMul(f32(t, par, aData, m, k), f32(t, par, bData, k, n)).AsFloat32()
	assert.Equal(t, want, got)
}

func TestMatMul_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	a := f32(t, backend, []float32{1, 2, 3, 4}, 2, 2)
	b := f32(t, backend, []float32{1, 2, 3}, 3, 1)
	assert.Panics(t, func() { backend.MatMul(a, b) })
}

func TestBatchMatMul_4D(t *testing.T) {
	backend := New()
	// Two heads, each a 2x2 times identity / doubled identity.
	a := f32(t, backend, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 1, 2, 2, 2)
	b := f32(t, backend, []float32{1, 0, 0, 1, 2, 0, 0, 2}, 1, 2, 2, 2)

	out := backend.BatchMatMul(a, b)

	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 10, 12, 14, 16}, out.AsFloat32())
}

func TestTranspose(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{0, 1, 2, 3, 4, 5}, 2, 3)

	out := backend.Transpose(x)

	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, out.AsFloat32())
}

func TestTranspose_4DHeads(t *testing.T) {
	backend := New()
	data := make([]float32, 2*3*4)
	for i := range data {
		data[i] = float32(i)
	}
	x := f32(t, backend, data, 1, 2, 3, 4)

	out := backend.Transpose(x, 0, 2, 1, 3)
	require.Equal(t, tensor.Shape{1, 3, 2, 4}, out.Shape())

	back := backend.Transpose(out, 0, 2, 1, 3)
	assert.Equal(t, data, back.AsFloat32())
	// out[0, 1, 1, 2] == x[0, 1, 1, 2] = 1*12 + 1*4 + 2
	assert.Equal(t, float32(18), out.AsFloat32()[1*8+1*4+2])
}

func TestTranspose_Bool(t *testing.T) {
	backend := New()
	x, err := tensor.FromSlice([]bool{true, false, false, false}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	out := backend.Transpose(x.Raw())
	assert.Equal(t, []bool{true, false, false, false}, out.AsBool())
}

func TestReshape(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	out := backend.Reshape(x, tensor.Shape{3, 2})

	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, x.AsFloat32(), out.AsFloat32())
	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4}) })
}

func TestScalarOps(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{-1, 4, 9}, 3)

	assert.Equal(t, []float32{-2, 8, 18}, backend.MulScalar(x, float32(2)).AsFloat32())
	assert.Equal(t, []float32{0, 5, 10}, backend.AddScalar(x, 1.0).AsFloat32())
	assert.Equal(t, []float32{0, 4, 9}, backend.ReLU(x).AsFloat32())
	assert.Equal(t, []float32{2, 3}, backend.Sqrt(f32(t, backend, []float32{4, 9}, 2)).AsFloat32())
}

func TestSoftmax_RowsSumToOne(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{1, 2, 3, 4, -1e9, 0, 1000, 1001}, 1, 2, 2, 2)

	out := backend.Softmax(x, -1).AsFloat32()

	for r := 0; r < 4; r++ {
		sum := out[2*r] + out[2*r+1]
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", r)
	}
	assert.InDelta(t, 0, out[4], 1e-6, "masked entry must vanish")
	assert.False(t, math.IsNaN(float64(out[6])))
}

func TestSoftmax_NonLastDimPanics(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{1, 2, 3, 4}, 2, 2)
	assert.Panics(t, func() { backend.Softmax(x, 0) })
}

func TestReductions(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	sum := backend.SumDim(x, 1, false)
	assert.Equal(t, tensor.Shape{2}, sum.Shape())
	assert.Equal(t, []float32{6, 15}, sum.AsFloat32())

	sum0 := backend.SumDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, sum0.Shape())
	assert.Equal(t, []float32{5, 7, 9}, sum0.AsFloat32())

	mean := backend.MeanDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, mean.Shape())
	assert.InDeltaSlice(t, []float32{2, 5}, mean.AsFloat32(), 1e-6)
}

func TestArgmax(t *testing.T) {
	backend := New()
	x := f32(t, backend, []float32{0.1, 0.7, 0.2, 3, 3, 1}, 2, 3)

	out := backend.Argmax(x, -1)

	assert.Equal(t, tensor.Int32, out.DType())
	assert.Equal(t, []int32{1, 0}, out.AsInt32())
}

func TestEmbedding(t *testing.T) {
	backend := New()
	w := f32(t, backend, []float32{0, 0, 1, 1, 2, 2}, 3, 2)
	ids := i32(t, backend, []int32{2, 0, 1, 2}, 2, 2)

	out := backend.Embedding(w, ids, 0)

	assert.Equal(t, tensor.Shape{2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{2, 2, 0, 0, 1, 1, 2, 2}, out.AsFloat32())
}

func TestEmbedding_OutOfRangePanics(t *testing.T) {
	backend := New()
	w := f32(t, backend, []float32{0, 0, 1, 1}, 2, 2)

	assert.Panics(t, func() { backend.Embedding(w, i32(t, backend, []int32{2}, 1), -1) })
	assert.Panics(t, func() { backend.Embedding(w, i32(t, backend, []int32{-1}, 1), -1) })
}

func TestWhere_BroadcastMask(t *testing.T) {
	backend := New()
	mask, err := tensor.FromSlice([]bool{false, true, false, false}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)
	fill := f32(t, backend, []float32{-1e9}, 1)
	scores := f32(t, backend, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 1, 2, 2)

	out := backend.Where(mask.Raw(), fill, scores)

	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{1, -1e9, 3, 4, 5, -1e9, 7, 8}, out.AsFloat32())
}

func TestCrossEntropy(t *testing.T) {
	backend := New()
	logits := f32(t, backend, []float32{0, 0, 0, 0, 10, 0}, 2, 3)
	targets := i32(t, backend, []int32{2, 1}, 2)

	loss := backend.CrossEntropy(logits, targets).AsFloat32()[0]

	uniform := math.Log(3)
	confident := math.Log(1+2*math.Exp(-10)) // close to zero
	assert.InDelta(t, (uniform+confident)/2, float64(loss), 1e-5)
}

func TestCrossEntropy_BadTargetPanics(t *testing.T) {
	backend := New()
	logits := f32(t, backend, []float32{0, 0}, 1, 2)
	assert.Panics(t, func() { backend.CrossEntropy(logits, i32(t, backend, []int32{5}, 1)) })
}
