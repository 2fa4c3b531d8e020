package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// ErrInvalidConfig is returned when a TransformerConfig fails validation.
var ErrInvalidConfig = errors.New("invalid transformer config")

// TransformerConfig holds the hyperparameters of an encoder-decoder model.
type TransformerConfig struct {
	VocabSize        int     `yaml:"vocab_size"`
	DModel           int     `yaml:"d_model"`
	NumHeads         int     `yaml:"num_heads"`
	NumEncoderLayers int     `yaml:"num_encoder_layers"`
	NumDecoderLayers int     `yaml:"num_decoder_layers"`
	DFF              int     `yaml:"d_ff"`
	MaxLen           int     `yaml:"max_len"`
	PadIdx           int     `yaml:"pad_idx"`
	Dropout          float32 `yaml:"dropout"`
	NormEpsilon      float32 `yaml:"norm_epsilon"`
	MaskPadding      bool    `yaml:"mask_padding"`
	Seed             int64   `yaml:"seed"`
}

// DefaultTransformerConfig returns a small configuration suited to the
// reversal task over the 28-symbol vocabulary.
func DefaultTransformerConfig() TransformerConfig {
	return TransformerConfig{
		VocabSize:        28,
		DModel:           64,
		NumHeads:         4,
		NumEncoderLayers: 2,
		NumDecoderLayers: 2,
		DFF:              128,
		MaxLen:           64,
		PadIdx:           0,
		Dropout:          0.1,
		NormEpsilon:      DefaultNormEpsilon,
		MaskPadding:      false,
		Seed:             42,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c TransformerConfig) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	case c.DModel <= 0:
		return fmt.Errorf("%w: d_model must be positive, got %d", ErrInvalidConfig, c.DModel)
	case c.NumHeads <= 0:
		return fmt.Errorf("%w: num_heads must be positive, got %d", ErrInvalidConfig, c.NumHeads)
	case c.DModel%c.NumHeads != 0:
		return fmt.Errorf("%w: d_model (%d) must be divisible by num_heads (%d)", ErrInvalidConfig, c.DModel, c.NumHeads)
	case c.NumEncoderLayers < 1 || c.NumDecoderLayers < 1:
		return fmt.Errorf("%w: layer counts must be at least 1, got encoder=%d decoder=%d",
			ErrInvalidConfig, c.NumEncoderLayers, c.NumDecoderLayers)
	case c.DFF <= 0:
		return fmt.Errorf("%w: d_ff must be positive, got %d", ErrInvalidConfig, c.DFF)
	case c.MaxLen <= 0:
		return fmt.Errorf("%w: max_len must be positive, got %d", ErrInvalidConfig, c.MaxLen)
	case c.PadIdx < 0 || c.PadIdx >= c.VocabSize:
		return fmt.Errorf("%w: pad_idx %d outside vocabulary of size %d", ErrInvalidConfig, c.PadIdx, c.VocabSize)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidConfig, c.Dropout)
	case c.NormEpsilon <= 0:
		return fmt.Errorf("%w: norm_epsilon must be positive, got %v", ErrInvalidConfig, c.NormEpsilon)
	}
	return nil
}

// Masks carries the three attention masks of one forward pass.
// Nil fields mean nothing is blocked.
type Masks[B tensor.Backend] struct {
	Src    *tensor.Tensor[bool, B] // encoder self-attention
	Tgt    *tensor.Tensor[bool, B] // decoder self-attention, normally causal
	Memory *tensor.Tensor[bool, B] // decoder cross-attention over the source
}

// Transformer is the full encoder-decoder model.
//
// Architecture:
//
//	memory = EncoderNorm(Encoder^N(PE(SrcEmbed(src) * sqrt(d))))
//	hidden = DecoderNorm(Decoder^N(PE(TgtEmbed(tgt) * sqrt(d)), memory))
//	logits = Generator(hidden)
//
// Example:
//
//	model, err := nn.NewTransformer(nn.DefaultTransformerConfig(), backend)
//	logits := model.Forward(src, tgtIn) // [B, Lt, vocab]
type Transformer[B tensor.Backend] struct {
	SrcEmbed    *Embedding[B]
	TgtEmbed    *Embedding[B]
	PE          *PositionalEncoding[B]
	Encoder     []*EncoderLayer[B]
	EncoderNorm *NormalizationLayer[B]
	Decoder     []*DecoderLayer[B]
	DecoderNorm *NormalizationLayer[B]
	Generator   *Linear[B]

	cfg     TransformerConfig
	backend B
	scale   float32
	params  []*Parameter[B]
}

// NewTransformer validates cfg and builds a model whose weights are drawn
// from a generator seeded with cfg.Seed.
func NewTransformer[B tensor.Backend](cfg TransformerConfig, backend B) (*Transformer[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: ML uses math/rand intentionally

	m := &Transformer[B]{
		SrcEmbed:    NewEmbedding(cfg.VocabSize, cfg.DModel, cfg.PadIdx, rng, backend),
		TgtEmbed:    NewEmbedding(cfg.VocabSize, cfg.DModel, cfg.PadIdx, rng, backend),
		PE:          NewPositionalEncoding(cfg.MaxLen, cfg.DModel, cfg.Dropout, rng, backend),
		EncoderNorm: NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		DecoderNorm: NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Generator:   NewLinear(cfg.DModel, cfg.VocabSize, rng, backend),
		cfg:         cfg,
		backend:     backend,
		scale:       float32(math.Sqrt(float64(cfg.DModel))),
	}

	m.params = append(m.params, scope("src_embed", m.SrcEmbed.Parameters())...)
	m.params = append(m.params, scope("tgt_embed", m.TgtEmbed.Parameters())...)
	for i := 0; i < cfg.NumEncoderLayers; i++ {
		layer := NewEncoderLayer(cfg, rng, backend)
		m.Encoder = append(m.Encoder, layer)
		m.params = append(m.params, scope(fmt.Sprintf("encoder.%d", i), layer.Parameters())...)
	}
	m.params = append(m.params, scope("encoder_norm", m.EncoderNorm.Parameters())...)
	for i := 0; i < cfg.NumDecoderLayers; i++ {
		layer := NewDecoderLayer(cfg, rng, backend)
		m.Decoder = append(m.Decoder, layer)
		m.params = append(m.params, scope(fmt.Sprintf("decoder.%d", i), layer.Parameters())...)
	}
	m.params = append(m.params, scope("decoder_norm", m.DecoderNorm.Parameters())...)
	m.params = append(m.params, scope("generator", m.Generator.Parameters())...)

	return m, nil
}

// Forward maps src [B, Ls] and tgt [B, Lt] token ids to logits
// [B, Lt, vocab]. Decoder self-attention is always causal; padding masks
// are added when the config enables MaskPadding.
func (m *Transformer[B]) Forward(src, tgt *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return m.ForwardMasked(src, tgt, m.BuildMasks(src, tgt))
}

// BuildMasks returns the masks Forward uses for src and tgt.
func (m *Transformer[B]) BuildMasks(src, tgt *tensor.Tensor[int32, B]) Masks[B] {
	masks := Masks[B]{Tgt: CausalMask(tgt.Shape()[1], m.backend)}
	if m.cfg.MaskPadding {
		pad := int32(m.cfg.PadIdx) //nolint:gosec // validated against VocabSize
		masks.Src = PaddingMask(src, pad)
		masks.Memory = masks.Src
		masks.Tgt = CombineMasks(masks.Tgt, PaddingMask(tgt, pad))
	}
	return masks
}

// ForwardMasked runs the model with caller-provided masks.
func (m *Transformer[B]) ForwardMasked(src, tgt *tensor.Tensor[int32, B], masks Masks[B]) *tensor.Tensor[float32, B] {
	memory := m.Encode(src, masks.Src)
	return m.Decode(tgt, memory, masks.Tgt, masks.Memory)
}

// Encode embeds src [B, Ls] and runs the encoder stack, returning the memory
// [B, Ls, d_model].
func (m *Transformer[B]) Encode(src *tensor.Tensor[int32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	m.checkTokens("Encode", src)
	x := m.PE.Forward(m.SrcEmbed.Forward(src).MulScalar(m.scale))
	for _, layer := range m.Encoder {
		x = layer.Forward(x, mask)
	}
	return m.EncoderNorm.Forward(x)
}

// Decode runs the decoder stack over tgt [B, Lt] attending to memory and
// projects to logits [B, Lt, vocab].
func (m *Transformer[B]) Decode(
	tgt *tensor.Tensor[int32, B],
	memory *tensor.Tensor[float32, B],
	tgtMask, memoryMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	m.checkTokens("Decode", tgt)
	x := m.PE.Forward(m.TgtEmbed.Forward(tgt).MulScalar(m.scale))
	for _, layer := range m.Decoder {
		x = layer.Forward(x, memory, tgtMask, memoryMask)
	}
	return m.Generator.Forward(m.DecoderNorm.Forward(x))
}

func (m *Transformer[B]) checkTokens(op string, tokens *tensor.Tensor[int32, B]) {
	shape := tokens.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Transformer.%s: expected [batch, seq] token ids, got shape %v", op, shape))
	}
	if shape[1] > m.cfg.MaxLen {
		panic(fmt.Sprintf("Transformer.%s: sequence length %d exceeds max_len %d", op, shape[1], m.cfg.MaxLen))
	}
}

// SetTraining switches every dropout site between training and evaluation.
func (m *Transformer[B]) SetTraining(training bool) {
	m.PE.SetTraining(training)
	for _, layer := range m.Encoder {
		layer.SetTraining(training)
	}
	for _, layer := range m.Decoder {
		layer.SetTraining(training)
	}
}

// Training reports whether dropout is active.
func (m *Transformer[B]) Training() bool {
	return m.PE.Dropout.Training()
}

// Parameters returns all parameters in a stable order: embeddings, encoder,
// decoder, generator.
func (m *Transformer[B]) Parameters() []*Parameter[B] {
	return m.params
}

// Config returns the configuration the model was built from.
func (m *Transformer[B]) Config() TransformerConfig {
	return m.cfg
}

// StateDict returns a copy of every parameter keyed by its dotted name.
func (m *Transformer[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(m.params))
	for _, p := range m.params {
		state[p.Name()] = p.Tensor().Raw().Clone()
	}
	return state
}

// LoadStateDict copies tensors from state into the model's parameters.
// Every parameter must be present with a matching float32 shape.
func (m *Transformer[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, p := range m.params {
		raw, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("load state: missing parameter %q", p.Name())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("load state: parameter %q has dtype %s, want float32", p.Name(), raw.DType())
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("load state: parameter %q has shape %v, want %v",
				p.Name(), raw.Shape(), p.Tensor().Shape())
		}
	}
	for _, p := range m.params {
		copy(p.Tensor().Data(), state[p.Name()].AsFloat32())
	}
	return nil
}
