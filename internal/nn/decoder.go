package nn

import (
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// DecoderLayer is one decoder block:
//
//	t = t + Dropout(Norm1(SelfAttn(t, t, t, tgtMask)))
//	t = t + Dropout(Norm2(CrossAttn(t, mem, mem, memMask)))
//	t = t + Dropout(Norm3(FFN(t)))
//
// tgtMask normally includes the causal mask. Cross-attention queries come
// from the target stream after the self-attention residual.
type DecoderLayer[B tensor.Backend] struct {
	SelfAttn  *MultiHeadAttention[B]
	CrossAttn *MultiHeadAttention[B]
	FFN       *FeedForward[B]
	Norm1     *NormalizationLayer[B]
	Norm2     *NormalizationLayer[B]
	Norm3     *NormalizationLayer[B]
	Dropout1  *Dropout[B]
	Dropout2  *Dropout[B]
	Dropout3  *Dropout[B]
}

// NewDecoderLayer creates a decoder block.
func NewDecoderLayer[B tensor.Backend](cfg TransformerConfig, rng *rand.Rand, backend B) *DecoderLayer[B] {
	d := &DecoderLayer[B]{
		SelfAttn:  NewMultiHeadAttention(cfg.DModel, cfg.NumHeads, cfg.Dropout, rng, backend),
		CrossAttn: NewMultiHeadAttention(cfg.DModel, cfg.NumHeads, cfg.Dropout, rng, backend),
		FFN:       NewFeedForward(cfg.DModel, cfg.DFF, cfg.Dropout, rng, backend),
		Norm1:     NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Norm2:     NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Norm3:     NewNormalizationLayer(cfg.DModel, cfg.NormEpsilon, backend),
		Dropout1:  NewDropout(cfg.Dropout, rng, backend),
		Dropout2:  NewDropout(cfg.Dropout, rng, backend),
		Dropout3:  NewDropout(cfg.Dropout, rng, backend),
	}
	scope("self_attn", d.SelfAttn.Parameters())
	scope("cross_attn", d.CrossAttn.Parameters())
	scope("ffn", d.FFN.Parameters())
	scope("norm1", d.Norm1.Parameters())
	scope("norm2", d.Norm2.Parameters())
	scope("norm3", d.Norm3.Parameters())
	return d
}

// Forward applies the block to target [B, Lt, d_model] attending to memory
// [B, Ls, d_model].
func (d *DecoderLayer[B]) Forward(
	target, memory *tensor.Tensor[float32, B],
	tgtMask, memoryMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	s := d.Norm1.Forward(d.SelfAttn.Forward(target, target, target, tgtMask))
	target = target.Add(d.Dropout1.Forward(s))

	c := d.Norm2.Forward(d.CrossAttn.Forward(target, memory, memory, memoryMask))
	target = target.Add(d.Dropout2.Forward(c))

	f := d.Norm3.Forward(d.FFN.Forward(target))
	return target.Add(d.Dropout3.Forward(f))
}

// Parameters returns all parameters of the block.
func (d *DecoderLayer[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	params = append(params, d.SelfAttn.Parameters()...)
	params = append(params, d.CrossAttn.Parameters()...)
	params = append(params, d.FFN.Parameters()...)
	params = append(params, d.Norm1.Parameters()...)
	params = append(params, d.Norm2.Parameters()...)
	params = append(params, d.Norm3.Parameters()...)
	return params
}

// SetTraining toggles every dropout site in the block.
func (d *DecoderLayer[B]) SetTraining(training bool) {
	setTraining(training, d.SelfAttn, d.CrossAttn, d.FFN, d.Dropout1, d.Dropout2, d.Dropout3)
}
