package nn

import (
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// FeedForward is the position-wise two-layer network of a Transformer block:
//
//	FFN(x) = Linear2(Dropout(ReLU(Linear1(x))))
//
// Linear1 maps d_model -> d_ff and Linear2 maps back. No mixing happens
// across sequence positions.
type FeedForward[B tensor.Backend] struct {
	Linear1 *Linear[B]
	Linear2 *Linear[B]
	Dropout *Dropout[B]
}

// NewFeedForward creates a feed-forward block.
func NewFeedForward[B tensor.Backend](dModel, dFF int, dropout float32, rng *rand.Rand, backend B) *FeedForward[B] {
	f := &FeedForward[B]{
		Linear1: NewLinear(dModel, dFF, rng, backend),
		Linear2: NewLinear(dFF, dModel, rng, backend),
		Dropout: NewDropout(dropout, rng, backend),
	}
	scope("linear1", f.Linear1.Parameters())
	scope("linear2", f.Linear2.Parameters())
	return f
}

// Forward applies the block to x [..., d_model].
func (f *FeedForward[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := f.Linear1.Forward(x).ReLU()
	return f.Linear2.Forward(f.Dropout.Forward(h))
}

// Parameters returns the parameters of both linear layers.
func (f *FeedForward[B]) Parameters() []*Parameter[B] {
	return append(f.Linear1.Parameters(), f.Linear2.Parameters()...)
}

// SetTraining toggles dropout.
func (f *FeedForward[B]) SetTraining(training bool) {
	f.Dropout.SetTraining(training)
}
