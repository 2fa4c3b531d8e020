package nn_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func TestTransformerForwardShape(t *testing.T) {
	backend := cpu.New()
	model, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)

	src := ids(t, []int32{2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{2, 4}, backend)
	tgt := ids(t, []int32{1, 9, 8, 1, 5, 4}, tensor.Shape{2, 3}, backend)

	logits := model.Forward(src, tgt)
	assert.Equal(t, tensor.Shape{2, 3, 28}, logits.Shape())
	for _, v := range logits.Data() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite logit %v", v)
		}
	}
}

func TestTransformerEvalIsDeterministic(t *testing.T) {
	backend := cpu.New()
	model, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)
	model.SetTraining(false)

	src := ids(t, []int32{2, 3, 4, 5}, tensor.Shape{1, 4}, backend)
	tgt := ids(t, []int32{1, 5, 4}, tensor.Shape{1, 3}, backend)

	first := model.Forward(src, tgt).Data()
	second := model.Forward(src, tgt).Data()
	assert.Equal(t, first, second)
}

func TestTransformerCausality(t *testing.T) {
	backend := cpu.New()
	model, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)
	model.SetTraining(false)

	src := ids(t, []int32{2, 3, 4, 5}, tensor.Shape{1, 4}, backend)
	a := model.Forward(src, ids(t, []int32{1, 5, 4}, tensor.Shape{1, 3}, backend))
	b := model.Forward(src, ids(t, []int32{1, 5, 20}, tensor.Shape{1, 3}, backend))

	// Changing the last target token must not affect earlier positions.
	assert.InDeltaSlice(t, a.Data()[:2*28], b.Data()[:2*28], 1e-5)
	assert.NotEqual(t, a.Data()[2*28:], b.Data()[2*28:])
}

func TestTransformerSameSeedSameWeights(t *testing.T) {
	backend := cpu.New()
	a, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)
	b, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)

	pa, pb := a.Parameters(), b.Parameters()
	require.Equal(t, len(pa), len(pb))
	for i := range pa {
		assert.Equal(t, pa[i].Tensor().Data(), pb[i].Tensor().Data(), pa[i].Name())
	}
}

func TestTransformerParameterNames(t *testing.T) {
	model, err := nn.NewTransformer(smallConfig(), cpu.New())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, p := range model.Parameters() {
		if seen[p.Name()] {
			t.Errorf("duplicate parameter name %q", p.Name())
		}
		seen[p.Name()] = true
	}

	for _, name := range []string{
		"src_embed.weight",
		"tgt_embed.weight",
		"encoder.0.self_attn.w_q.weight",
		"encoder.1.ffn.linear2.bias",
		"encoder_norm.gamma",
		"decoder.1.cross_attn.w_o.bias",
		"decoder.0.norm3.beta",
		"decoder_norm.beta",
		"generator.weight",
	} {
		assert.True(t, seen[name], "missing %s", name)
	}
}

func TestTransformerConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*nn.TransformerConfig)
	}{
		{"zero d_model", func(c *nn.TransformerConfig) { c.DModel = 0 }},
		{"heads do not divide d_model", func(c *nn.TransformerConfig) { c.NumHeads = 3 }},
		{"zero vocab", func(c *nn.TransformerConfig) { c.VocabSize = 0 }},
		{"pad outside vocab", func(c *nn.TransformerConfig) { c.PadIdx = 28 }},
		{"dropout one", func(c *nn.TransformerConfig) { c.Dropout = 1 }},
		{"negative dropout", func(c *nn.TransformerConfig) { c.Dropout = -0.1 }},
		{"zero max_len", func(c *nn.TransformerConfig) { c.MaxLen = 0 }},
		{"no encoder layers", func(c *nn.TransformerConfig) { c.NumEncoderLayers = 0 }},
		{"no decoder layers", func(c *nn.TransformerConfig) { c.NumDecoderLayers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.modify(&cfg)
			model, err := nn.NewTransformer(cfg, cpu.New())
			assert.Nil(t, model)
			if !errors.Is(err, nn.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	require.NoError(t, nn.DefaultTransformerConfig().Validate())
}

func TestTransformerStateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	cfg := smallConfig()
	source, err := nn.NewTransformer(cfg, backend)
	require.NoError(t, err)

	cfg.Seed = 99
	target, err := nn.NewTransformer(cfg, backend)
	require.NoError(t, err)
	source.SetTraining(false)
	target.SetTraining(false)

	src := ids(t, []int32{2, 3, 4, 5}, tensor.Shape{1, 4}, backend)
	tgt := ids(t, []int32{1, 5, 4}, tensor.Shape{1, 3}, backend)
	assert.NotEqual(t, source.Forward(src, tgt).Data(), target.Forward(src, tgt).Data())

	require.NoError(t, target.LoadStateDict(source.StateDict()))
	assert.Equal(t, source.Forward(src, tgt).Data(), target.Forward(src, tgt).Data())
}

func TestTransformerLoadStateDictErrors(t *testing.T) {
	backend := cpu.New()
	model, err := nn.NewTransformer(smallConfig(), backend)
	require.NoError(t, err)

	state := model.StateDict()
	delete(state, "generator.bias")
	assert.ErrorContains(t, model.LoadStateDict(state), "generator.bias")

	state = model.StateDict()
	state["generator.bias"] = tensor.MustRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	assert.ErrorContains(t, model.LoadStateDict(state), "shape")
}

func TestTransformerPaddingMaskIgnoresPadKeys(t *testing.T) {
	backend := cpu.New()
	cfg := smallConfig()
	cfg.MaskPadding = true
	model, err := nn.NewTransformer(cfg, backend)
	require.NoError(t, err)
	model.SetTraining(false)

	src := ids(t, []int32{2, 3, 0, 0}, tensor.Shape{1, 4}, backend)
	tgt := ids(t, []int32{1, 3}, tensor.Shape{1, 2}, backend)
	masks := model.BuildMasks(src, tgt)
	require.NotNil(t, masks.Src)
	assert.Equal(t, []bool{false, false, true, true}, masks.Memory.Data())

	mem := model.Encode(src, masks.Src)
	_, weights := model.Decoder[0].CrossAttn.ForwardWithWeights(
		tensor.Randn(tensor.Shape{1, 2, 16}, newRNG(), backend), mem, mem, masks.Memory)
	data := weights.Data()
	for i := 0; i < len(data); i += 4 {
		assert.Less(t, data[i+2], float32(1e-6))
		assert.Less(t, data[i+3], float32(1e-6))
	}
}
