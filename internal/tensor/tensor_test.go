package tensor_test

import (
	"math/rand"
	"testing"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 3}, x.Shape())
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, float32(6), x.At(1, 2))

	_, err = tensor.FromSlice([]float32{1, 2}, tensor.Shape{3}, backend)
	assert.Error(t, err)
}

func TestSetAndAt(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[int32](tensor.Shape{2, 2}, backend)

	x.Set(7, 1, 0)

	if got := x.At(1, 0); got != 7 {
		t.Errorf("At(1, 0) = %d, want 7", got)
	}
	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestCreation(t *testing.T) {
	backend := cpu.New()

	ones := tensor.Ones[bool](tensor.Shape{3}, backend)
	assert.Equal(t, []bool{true, true, true}, ones.Data())

	full := tensor.Full[float32](tensor.Shape{2}, 2.5, backend)
	assert.Equal(t, []float32{2.5, 2.5}, full.Data())

	u := tensor.Uniform(tensor.Shape{100}, -0.5, 0.5, rand.New(rand.NewSource(1)), backend)
	for _, v := range u.Data() {
		assert.GreaterOrEqual(t, v, float32(-0.5))
		assert.Less(t, v, float32(0.5))
	}
}

func TestRandn_SeedIsReproducible(t *testing.T) {
	backend := cpu.New()
	a := tensor.Randn(tensor.Shape{4, 4}, rand.New(rand.NewSource(42)), backend)
	b := tensor.Randn(tensor.Shape{4, 4}, rand.New(rand.NewSource(42)), backend)
	assert.Equal(t, a.Data(), b.Data())
}

func TestReshape_Infer(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[float32](tensor.Shape{2, 3, 4}, backend)

	assert.Equal(t, tensor.Shape{6, 4}, x.Reshape(-1, 4).Shape())
	assert.Equal(t, tensor.Shape{2, 12}, x.Reshape(2, -1).Shape())
	assert.Panics(t, func() { x.Reshape(-1, -1) })
	assert.Panics(t, func() { x.Reshape(5, -1) })
}

func TestClone_IsIndependent(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	c := x.Clone()
	c.Data()[0] = 99

	assert.Equal(t, float32(1), x.At(0))
}

func TestWhere(t *testing.T) {
	backend := cpu.New()
	cond, err := tensor.FromSlice([]bool{true, false}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	x := tensor.Full[float32](tensor.Shape{2}, 1, backend)
	y := tensor.Full[float32](tensor.Shape{2}, 2, backend)

	assert.Equal(t, []float32{1, 2}, tensor.Where(cond, x, y).Data())
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b    tensor.Shape
		want    tensor.Shape
		wantErr bool
	}{
		{tensor.Shape{3, 1}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, false},
		{tensor.Shape{1, 1, 4, 4}, tensor.Shape{2, 3, 4, 4}, tensor.Shape{2, 3, 4, 4}, false},
		{tensor.Shape{5}, tensor.Shape{2, 5}, tensor.Shape{2, 5}, false},
		{tensor.Shape{3, 4}, tensor.Shape{3, 5}, nil, true},
	}

	for _, tt := range tests {
		got, _, err := tensor.BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err, "%v vs %v", tt.a, tt.b)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBroadcastStrides(t *testing.T) {
	got := tensor.BroadcastStrides(tensor.Shape{1, 4}, tensor.Shape{2, 3, 4})
	assert.Equal(t, []int{0, 0, 1}, got)

	got = tensor.BroadcastStrides(tensor.Shape{2, 1, 4}, tensor.Shape{2, 3, 4})
	assert.Equal(t, []int{4, 0, 1}, got)
}

func TestNormalizeDim(t *testing.T) {
	s := tensor.Shape{2, 3, 4}
	assert.Equal(t, 2, s.NormalizeDim(-1))
	assert.Equal(t, 0, s.NormalizeDim(0))
	assert.Panics(t, func() { s.NormalizeDim(3) })
}
