package nn_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func TestNormalizationLayer(t *testing.T) {
	backend := cpu.New()
	norm := nn.NewNormalizationLayer(4, nn.DefaultNormEpsilon, backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 10, 10, 10, 14}, tensor.Shape{2, 4}, backend)
	require.NoError(t, err)
	out := norm.Forward(x)
	data := out.Data()

	for row := 0; row < 2; row++ {
		var mean, ss float64
		for _, v := range data[row*4 : row*4+4] {
			mean += float64(v)
		}
		mean /= 4
		for _, v := range data[row*4 : row*4+4] {
			ss += (float64(v) - mean) * (float64(v) - mean)
		}
		std := math.Sqrt(ss / 3)
		assert.InDelta(t, 0, mean, 1e-5)
		assert.InDelta(t, 1, std, 1e-4)
	}

	// Unbiased std of [1 2 3 4] is sqrt(5/3).
	assert.InDelta(t, -1.5/math.Sqrt(5.0/3), data[0], 1e-4)
}
