package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// MultiHeadAttention implements the multi-head attention mechanism.
//
// Architecture:
//
//	MHA(Q, K, V) = Dropout(Concat(head_1, ..., head_h) * W_O)
//	head_i = SDPA(Q*W_Q_i, K*W_K_i, V*W_V_i)
//
// Query, key and value each have their own projection. Heads run as one
// batched matmul over the [B, H, L, d_k] layout and do not interact.
//
// Example:
//
//	mha := nn.NewMultiHeadAttention(512, 8, 0.1, rng, backend)
//	out := mha.Forward(x, x, x, mask)        // self-attention
//	out = mha.Forward(t, mem, mem, memMask)  // cross-attention
type MultiHeadAttention[B tensor.Backend] struct {
	WQ        *Linear[B]
	WK        *Linear[B]
	WV        *Linear[B]
	WO        *Linear[B]
	Attention *ScaledDotProductAttention[B]
	Dropout   *Dropout[B]
	NumHeads  int
	HeadDim   int
	EmbedDim  int
}

// NewMultiHeadAttention creates a new multi-head attention module.
// Panics if embedDim is not divisible by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, dropout float32, rng *rand.Rand, backend B) *MultiHeadAttention[B] {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		panic(fmt.Sprintf("MultiHeadAttention: embed_dim (%d) must be divisible by num_heads (%d)", embedDim, numHeads))
	}

	m := &MultiHeadAttention[B]{
		WQ:        NewLinear(embedDim, embedDim, rng, backend),
		WK:        NewLinear(embedDim, embedDim, rng, backend),
		WV:        NewLinear(embedDim, embedDim, rng, backend),
		WO:        NewLinear(embedDim, embedDim, rng, backend),
		Attention: NewScaledDotProductAttention(dropout, rng, backend),
		Dropout:   NewDropout(dropout, rng, backend),
		NumHeads:  numHeads,
		HeadDim:   embedDim / numHeads,
		EmbedDim:  embedDim,
	}
	scope("w_q", m.WQ.Parameters())
	scope("w_k", m.WK.Parameters())
	scope("w_v", m.WV.Parameters())
	scope("w_o", m.WO.Parameters())
	return m
}

// Forward computes multi-head attention.
//
// Args:
//   - query: [batch, seq_q, embed_dim]
//   - key, value: [batch, seq_k, embed_dim]
//   - mask: bool mask broadcastable to [batch, heads, seq_q, seq_k], or nil
//
// Returns [batch, seq_q, embed_dim].
func (m *MultiHeadAttention[B]) Forward(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	out, _ := m.ForwardWithWeights(query, key, value, mask)
	return out
}

// ForwardWithWeights is Forward that also returns the attention weights
// [batch, heads, seq_q, seq_k] for inspection.
func (m *MultiHeadAttention[B]) ForwardWithWeights(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	m.validate(query, key, value)
	batch, seqQ := query.Shape()[0], query.Shape()[1]

	q := m.splitHeads(m.WQ.Forward(query))
	k := m.splitHeads(m.WK.Forward(key))
	v := m.splitHeads(m.WV.Forward(value))

	attnOut, weights := m.Attention.Forward(q, k, v, mask)

	// [B, H, Lq, d_k] -> [B, Lq, H, d_k] -> [B, Lq, D]
	concat := attnOut.Transpose(0, 2, 1, 3).Reshape(batch, seqQ, m.EmbedDim)
	return m.Dropout.Forward(m.WO.Forward(concat)), weights
}

// splitHeads reshapes [B, L, D] to [B, H, L, d_k].
func (m *MultiHeadAttention[B]) splitHeads(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	return x.Reshape(shape[0], shape[1], m.NumHeads, m.HeadDim).Transpose(0, 2, 1, 3)
}

func (m *MultiHeadAttention[B]) validate(query, key, value *tensor.Tensor[float32, B]) {
	qs, ks, vs := query.Shape(), key.Shape(), value.Shape()
	if len(qs) != 3 || len(ks) != 3 || len(vs) != 3 {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: expected 3D inputs, got %v, %v, %v", qs, ks, vs))
	}
	if qs[2] != m.EmbedDim || ks[2] != m.EmbedDim || vs[2] != m.EmbedDim {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: expected embed dim %d, got %v, %v, %v", m.EmbedDim, qs, ks, vs))
	}
	if qs[0] != ks[0] || ks[0] != vs[0] || ks[1] != vs[1] {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: incompatible shapes %v, %v, %v", qs, ks, vs))
	}
}

// Parameters returns the projection parameters in Q, K, V, O order.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	params = append(params, m.WQ.Parameters()...)
	params = append(params, m.WK.Parameters()...)
	params = append(params, m.WV.Parameters()...)
	params = append(params, m.WO.Parameters()...)
	return params
}

// SetTraining toggles both dropout sites.
func (m *MultiHeadAttention[B]) SetTraining(training bool) {
	setTraining(training, m.Attention, m.Dropout)
}
