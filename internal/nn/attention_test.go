package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func TestScaledDotProductAttentionRowsSumToOne(t *testing.T) {
	backend := cpu.New()
	sdpa := nn.NewScaledDotProductAttention(0, newRNG(), backend)
	q := randomInput(tensor.Shape{2, 3, 5, 4}, backend)

	out, weights := sdpa.Forward(q, q, q, nil)
	assert.Equal(t, tensor.Shape{2, 3, 5, 4}, out.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 5, 5}, weights.Shape())

	data := weights.Data()
	for row := 0; row < len(data)/5; row++ {
		var sum float32
		for _, w := range data[row*5 : row*5+5] {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-5, "row %d", row)
	}
}

func TestScaledDotProductAttentionWeightsSkipDropout(t *testing.T) {
	backend := cpu.New()
	sdpa := nn.NewScaledDotProductAttention(0.5, newRNG(), backend)
	q := randomInput(tensor.Shape{1, 2, 4, 4}, backend)

	sdpa.SetTraining(true)
	_, trainWeights := sdpa.Forward(q, q, q, nil)
	sdpa.SetTraining(false)
	_, evalWeights := sdpa.Forward(q, q, q, nil)

	assert.Equal(t, evalWeights.Data(), trainWeights.Data())
	data := trainWeights.Data()
	for row := 0; row < len(data)/4; row++ {
		var sum float32
		for _, w := range data[row*4 : row*4+4] {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-5, "row %d", row)
	}
}

func TestScaledDotProductAttentionCausal(t *testing.T) {
	backend := cpu.New()
	sdpa := nn.NewScaledDotProductAttention(0, newRNG(), backend)
	q := randomInput(tensor.Shape{1, 2, 4, 8}, backend)

	_, weights := sdpa.Forward(q, q, q, nn.CausalMask(4, backend))
	for h := 0; h < 2; h++ {
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				if w := weights.At(0, h, i, j); w > 1e-6 {
					t.Errorf("head %d: weight[%d][%d] = %v, want 0", h, i, j, w)
				}
			}
		}
	}
	// The first query can only see itself.
	assert.InDelta(t, 1, weights.At(0, 0, 0, 0), 1e-6)
}

func TestScaledDotProductAttentionFullyMaskedRowIsUniform(t *testing.T) {
	backend := cpu.New()
	sdpa := nn.NewScaledDotProductAttention(0, newRNG(), backend)
	q := randomInput(tensor.Shape{1, 1, 2, 4}, backend)

	mask := tensor.Full[bool](tensor.Shape{1, 1, 1, 2}, true, backend)
	_, weights := sdpa.Forward(q, q, q, mask)
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5}, weights.Data(), 1e-6)
}
