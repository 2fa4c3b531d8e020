package nn

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// DefaultNormEpsilon is the epsilon added to the standard deviation.
const DefaultNormEpsilon = 1e-5

// NormalizationLayer normalizes each position's feature vector:
//
//	y = gamma * (x - mean) / (std + eps) + beta
//
// Both statistics are taken over the last axis. std is the unbiased
// (n-1) estimate. gamma starts at 1 and beta at 0.
//
// Example:
//
//	norm := nn.NewNormalizationLayer(512, nn.DefaultNormEpsilon, backend)
//	y := norm.Forward(x) // [B, L, 512]
type NormalizationLayer[B tensor.Backend] struct {
	gamma   *Parameter[B]
	beta    *Parameter[B]
	dim     int
	epsilon float32
}

// NewNormalizationLayer creates a normalization layer over features of size dim.
func NewNormalizationLayer[B tensor.Backend](dim int, epsilon float32, backend B) *NormalizationLayer[B] {
	if dim < 2 {
		panic(fmt.Sprintf("NewNormalizationLayer: need at least 2 features for an unbiased std, got %d", dim))
	}
	return &NormalizationLayer[B]{
		gamma:   NewParameter("gamma", Ones(tensor.Shape{dim}, backend)),
		beta:    NewParameter("beta", Zeros(tensor.Shape{dim}, backend)),
		dim:     dim,
		epsilon: epsilon,
	}
}

// Forward normalizes x over its last dimension.
func (n *NormalizationLayer[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != n.dim {
		panic(fmt.Sprintf("NormalizationLayer.Forward: expected last dim %d, got shape %v", n.dim, shape))
	}

	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).SumDim(-1, true).MulScalar(1 / float32(n.dim-1))
	std := variance.Sqrt()

	normalized := centered.Div(std.AddScalar(n.epsilon))
	return normalized.Mul(n.gamma.Tensor()).Add(n.beta.Tensor())
}

// Parameters returns [gamma, beta].
func (n *NormalizationLayer[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{n.gamma, n.beta}
}

// Epsilon returns the stabilizing epsilon.
func (n *NormalizationLayer[B]) Epsilon() float32 {
	return n.epsilon
}
