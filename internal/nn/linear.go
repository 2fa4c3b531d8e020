package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Leading dimensions are flattened for the matmul and restored afterwards,
// so the layer applies independently to every position of a [B, L, D] input.
//
// Example:
//
//	layer := nn.NewLinear(512, 1024, rng, backend)
//	out := layer.Forward(x) // [B, L, 512] -> [B, L, 1024]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
}

// NewLinear creates a new Linear layer with Xavier-initialized weights and
// zero biases.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("NewLinear: features must be positive, got in=%d out=%d", inFeatures, outFeatures))
	}
	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng, backend)),
		bias:        NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend)),
	}
}

// Forward computes y = x @ W.T + b over the last dimension of input.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("Linear.Forward: expected at least 2D input [..., features], got shape %v", shape))
	}
	if shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, shape[len(shape)-1]))
	}

	x := input
	if len(shape) != 2 {
		x = input.Reshape(-1, l.inFeatures)
	}

	// [N, in] @ [in, out] = [N, out]
	output := x.MatMul(l.weight.Tensor().T())
	output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))

	if len(shape) != 2 {
		outShape := make([]int, len(shape))
		copy(outShape, shape)
		outShape[len(shape)-1] = l.outFeatures
		output = output.Reshape(outShape...)
	}
	return output
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}
