package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// MaskFill is the score written into suppressed positions before softmax.
// It drives their weight to zero while staying finite in float32, so even a
// fully masked row softmaxes to a uniform distribution instead of NaN.
const MaskFill float32 = -1e9

// ScaledDotProductAttention computes
//
//	Attention(Q, K, V) = Dropout(softmax(Q @ K.T / sqrt(d_k) + mask)) @ V
//
// Inputs are 4D: Q [B, H, Lq, d_k], K [B, H, Lk, d_k], V [B, H, Lk, d_v].
// The mask is a bool tensor broadcastable to [B, H, Lq, Lk] (true = blocked)
// or nil. Dropout on the weights is active only in training mode.
//
// Example:
//
//	sdpa := nn.NewScaledDotProductAttention(0.1, rng, backend)
//	out, weights := sdpa.Forward(q, k, v, nn.CausalMask(L, backend))
type ScaledDotProductAttention[B tensor.Backend] struct {
	Dropout *Dropout[B]
	backend B
}

// NewScaledDotProductAttention creates an attention kernel with dropout on
// the attention weights.
func NewScaledDotProductAttention[B tensor.Backend](dropout float32, rng *rand.Rand, backend B) *ScaledDotProductAttention[B] {
	return &ScaledDotProductAttention[B]{
		Dropout: NewDropout(dropout, rng, backend),
		backend: backend,
	}
}

// Forward returns the attended values [B, H, Lq, d_v] and the attention
// weights [B, H, Lq, Lk]. The weights are returned before dropout, so each
// row sums to 1.
func (s *ScaledDotProductAttention[B]) Forward(
	q, k, v *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) (output, weights *tensor.Tensor[float32, B]) {
	validateAttentionInputs(q, k, v)

	dk := q.Shape()[3]
	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2)).MulScalar(float32(1 / math.Sqrt(float64(dk))))

	if mask != nil {
		fill := tensor.Full[float32](tensor.Shape{1}, MaskFill, s.backend)
		scores = tensor.Where(mask, fill, scores)
	}

	weights = scores.Softmax(-1)
	output = s.Dropout.Forward(weights).BatchMatMul(v)
	return output, weights
}

// SetTraining toggles dropout on the attention weights.
func (s *ScaledDotProductAttention[B]) SetTraining(training bool) {
	s.Dropout.SetTraining(training)
}

func validateAttentionInputs[B tensor.Backend](q, k, v *tensor.Tensor[float32, B]) {
	qs, ks, vs := q.Shape(), k.Shape(), v.Shape()
	if len(qs) != 4 || len(ks) != 4 || len(vs) != 4 {
		panic(fmt.Sprintf("ScaledDotProductAttention: expected 4D Q/K/V, got %v, %v, %v", qs, ks, vs))
	}
	if qs[0] != ks[0] || qs[1] != ks[1] || ks[0] != vs[0] || ks[1] != vs[1] {
		panic(fmt.Sprintf("ScaledDotProductAttention: batch/head mismatch: Q %v, K %v, V %v", qs, ks, vs))
	}
	if qs[3] != ks[3] {
		panic(fmt.Sprintf("ScaledDotProductAttention: Q and K feature dims differ: %d vs %d", qs[3], ks[3]))
	}
	if ks[2] != vs[2] {
		panic(fmt.Sprintf("ScaledDotProductAttention: K and V lengths differ: %d vs %d", ks[2], vs[2]))
	}
}
