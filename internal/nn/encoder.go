package nn

import (
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// EncoderLayer is one encoder block:
//
//	x = x + Dropout(Norm1(SelfAttn(x, x, x, mask)))
//	x = x + Dropout(Norm2(FFN(x)))
//
// The sub-block output is normalized before it joins the residual stream.
type EncoderLayer[B tensor.Backend] struct {
	SelfAttn *MultiHeadAttention[B]
	FFN      *FeedForward[B]
	Norm1    *NormalizationLayer[B]
	Norm2    *NormalizationLayer[B]
	Dropout1 *Dropout[B]
	Dropout2 *Dropout[B]
}

// NewEncoderLayer creates an encoder block.
func NewEncoderLayer[B tensor.Backend](cfg TransformerConfig, rng *rand.Rand, backend B) *EncoderLayer[B] {
	e := &EncoderLayer[B]{
		SelfAttn: NewMultiHeadAttention(cfg.DModel, cfg.NumHeads, cfg.Dropout, rng, backend),
		FFN:      NewFeedForward(cfg.DModel, cfg.DFF, cfg.Dropout, rng, backend),
		Norm1:    NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Norm2:    NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Dropout1: NewDropout(cfg.Dropout, rng, backend),
		Dropout2: NewDropout(cfg.Dropout, rng, backend),
	}
	scope("self_attn", e.SelfAttn.Parameters())
	scope("ffn", e.FFN.Parameters())
	scope("norm1", e.Norm1.Parameters())
	scope("norm2", e.Norm2.Parameters())
	return e
}

// Forward applies the block to x [B, L, d_model] with an optional key mask.
func (e *EncoderLayer[B]) Forward(x *tensor.Tensor[float32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	a := e.Norm1.Forward(e.SelfAttn.Forward(x, x, x, mask))
	x = x.Add(e.Dropout1.Forward(a))

	f := e.Norm2.Forward(e.FFN.Forward(x))
	return x.Add(e.Dropout2.Forward(f))
}

// Parameters returns all parameters of the block.
func (e *EncoderLayer[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, e.SelfAttn.Parameters()...)
	params = append(params, e.FFN.Parameters()...)
	params = append(params, e.Norm1.Parameters()...)
	params = append(params, e.Norm2.Parameters()...)
	return params
}

// SetTraining toggles every dropout site in the block.
func (e *EncoderLayer[B]) SetTraining(training bool) {
	setTraining(training, e.SelfAttn, e.FFN, e.Dropout1, e.Dropout2)
}
