package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func TestMultiHeadAttentionPreservesShape(t *testing.T) {
	backend := cpu.New()
	for _, heads := range []int{1, 2, 4, 8} {
		mha := nn.NewMultiHeadAttention(16, heads, 0, newRNG(), backend)
		x := randomInput(tensor.Shape{2, 5, 16}, backend)
		mem := randomInput(tensor.Shape{2, 7, 16}, backend)

		self := mha.Forward(x, x, x, nn.CausalMask(5, backend))
		assert.Equal(t, tensor.Shape{2, 5, 16}, self.Shape(), "heads=%d", heads)

		cross, weights := mha.ForwardWithWeights(x, mem, mem, nil)
		assert.Equal(t, tensor.Shape{2, 5, 16}, cross.Shape(), "heads=%d", heads)
		assert.Equal(t, tensor.Shape{2, heads, 5, 7}, weights.Shape(), "heads=%d", heads)
	}
}

func TestMultiHeadAttentionIndivisiblePanics(t *testing.T) {
	assert.Panics(t, func() {
		nn.NewMultiHeadAttention(10, 3, 0, newRNG(), cpu.New())
	})
}
