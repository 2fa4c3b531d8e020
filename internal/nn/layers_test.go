package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func TestEncoderDecoderLayerShapes(t *testing.T) {
	backend := cpu.New()
	cfg := smallConfig()

	enc := nn.NewEncoderLayer(cfg, newRNG(), backend)
	dec := nn.NewDecoderLayer(cfg, newRNG(), backend)

	src := randomInput(tensor.Shape{3, 6, 16}, backend)
	tgt := randomInput(tensor.Shape{3, 4, 16}, backend)

	mem := enc.Forward(src, nil)
	assert.Equal(t, tensor.Shape{3, 6, 16}, mem.Shape())

	out := dec.Forward(tgt, mem, nn.CausalMask(4, backend), nil)
	assert.Equal(t, tensor.Shape{3, 4, 16}, out.Shape())

	// self_attn(4x2) + ffn(2x2) + norm(2x2)
	assert.Len(t, enc.Parameters(), 16)
	// self_attn + cross_attn + ffn + 3 norms
	assert.Len(t, dec.Parameters(), 26)
}
