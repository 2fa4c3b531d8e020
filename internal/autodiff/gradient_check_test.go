package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/tensor"
	"github.com/stretchr/testify/require"
)

type testBackend = AutodiffBackend[*cpu.CPUBackend]

// opFunc builds an output from float32 inputs using the given backend.
type opFunc func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor

func randRaw(rng *rand.Rand, shape tensor.Shape, lo, hi float32) *tensor.RawTensor {
	raw := tensor.MustRaw(shape, tensor.Float32, tensor.CPU)
	data := raw.AsFloat32()
	for i := range data {
		data[i] = lo + (hi-lo)*rng.Float32()
	}
	return raw
}

// weightedSum reduces out to a scalar as sum(out * w), so every output
// element contributes a distinct weight to the checked gradient.
func weightedSum(b *testBackend, out, w *tensor.RawTensor) *tensor.RawTensor {
	prod := b.Mul(out, w)
	flat := b.Reshape(prod, tensor.Shape{prod.NumElements()})
	return b.SumDim(flat, 0, false)
}

// checkGradients compares tape gradients against central finite differences.
func checkGradients(t *testing.T, f opFunc, inputs []*tensor.RawTensor) {
	t.Helper()

	b := New(cpu.New())
	rng := rand.New(rand.NewSource(7))
	out := f(b, inputs)
	w := randRaw(rng, out.Shape(), -1, 1)

	b.Tape().StartRecording()
	loss := tensor.New[float32](weightedSum(b, f(b, inputs), w), b)
	grads := Backward(loss, b)
	b.Tape().StopRecording()

	eval := func() float64 {
		return float64(weightedSum(b, f(b, inputs), w).AsFloat32()[0])
	}

	const eps = 1e-2
	for i, in := range inputs {
		if in.DType() != tensor.Float32 {
			continue
		}
		grad, ok := grads[in]
		require.True(t, ok, "no gradient for input %d", i)
		require.Equal(t, in.Shape(), grad.Shape(), "gradient shape for input %d", i)

		data := in.AsFloat32()
		for j := range data {
			orig := data[j]
			data[j] = orig + eps
			plus := eval()
			data[j] = orig - eps
			minus := eval()
			data[j] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := float64(grad.AsFloat32()[j])
			tol := 2e-2 * math.Max(1, math.Abs(numeric))
			if math.Abs(numeric-analytic) > tol {
				t.Errorf("input %d element %d: analytic %.5f, numeric %.5f", i, j, analytic, numeric)
			}
		}
	}
}

func TestGradient_AddBroadcast(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.Add(in[0], in[1])
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{2, 3}, -1, 1), randRaw(rng, tensor.Shape{3}, -1, 1)})
}

func TestGradient_SubMulDiv(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.Div(b.Mul(b.Sub(in[0], in[1]), in[0]), in[2])
	}, []*tensor.RawTensor{
		randRaw(rng, tensor.Shape{2, 3}, -1, 1),
		randRaw(rng, tensor.Shape{2, 1}, -1, 1),
		randRaw(rng, tensor.Shape{2, 3}, 1, 2),
	})
}

func TestGradient_MatMul(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.MatMul(in[0], b.Transpose(in[1]))
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{3, 4}, -1, 1), randRaw(rng, tensor.Shape{2, 4}, -1, 1)})
}

func TestGradient_BatchMatMulWithHeadTranspose(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		q := b.Transpose(b.Reshape(in[0], tensor.Shape{1, 3, 2, 2}), 0, 2, 1, 3)
		k := b.Transpose(b.Reshape(in[1], tensor.Shape{1, 3, 2, 2}), 0, 2, 1, 3)
		return b.BatchMatMul(q, b.Transpose(k, 0, 1, 3, 2))
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{1, 3, 4}, -1, 1), randRaw(rng, tensor.Shape{1, 3, 4}, -1, 1)})
}

func TestGradient_Softmax(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.Softmax(in[0], -1)
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{2, 2, 3}, -2, 2)})
}

func TestGradient_Normalization(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		x := in[0]
		centered := b.Sub(x, b.MeanDim(x, -1, true))
		variance := b.MulScalar(b.SumDim(b.Mul(centered, centered), -1, true), float32(1.0/3.0))
		std := b.AddScalar(b.Sqrt(variance), float32(1e-5))
		return b.Div(centered, std)
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{2, 4}, -2, 2)})
}

func TestGradient_ReLU(t *testing.T) {
	raw := tensor.MustRaw(tensor.Shape{4}, tensor.Float32, tensor.CPU)
	copy(raw.AsFloat32(), []float32{-1.5, -0.5, 0.5, 1.5})
	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.ReLU(in[0])
	}, []*tensor.RawTensor{raw})
}

func TestGradient_WhereMask(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	mask := tensor.MustRaw(tensor.Shape{1, 3}, tensor.Bool, tensor.CPU)
	copy(mask.AsBool(), []bool{false, true, false})
	fill := tensor.MustRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	fill.AsFloat32()[0] = -1e9

	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.Softmax(b.Where(mask, fill, in[0]), -1)
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{2, 3}, -1, 1)})
}

func TestGradient_Embedding(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ids := tensor.MustRaw(tensor.Shape{2, 2}, tensor.Int32, tensor.CPU)
	copy(ids.AsInt32(), []int32{1, 2, 2, 3})

	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.Embedding(in[0], ids, -1)
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{4, 3}, -1, 1)})
}

func TestGradient_CrossEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	targets := tensor.MustRaw(tensor.Shape{3}, tensor.Int32, tensor.CPU)
	copy(targets.AsInt32(), []int32{0, 4, 2})

	checkGradients(t, func(b *testBackend, in []*tensor.RawTensor) *tensor.RawTensor {
		return b.CrossEntropy(in[0], targets)
	}, []*tensor.RawTensor{randRaw(rng, tensor.Shape{3, 5}, -2, 2)})
}
