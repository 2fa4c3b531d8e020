package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Dropout zeroes each element with probability p during training and scales
// survivors by 1/(1-p). In evaluation mode, or with p == 0, it is the identity.
//
// The keep-mask is drawn from the module's own rng and applied as an
// element-wise multiply, so gradients flow only through kept elements.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	rng      *rand.Rand
	backend  B
}

// NewDropout creates a dropout module in training mode.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand, backend B) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("NewDropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, training: true, rng: rng, backend: backend}
}

// Forward applies dropout.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return x
	}

	mask := tensor.Zeros[float32](x.Shape(), d.backend)
	scale := 1 / (1 - d.p)
	data := mask.Data()
	for i := range data {
		if d.rng.Float32() >= d.p { //nolint:gosec // G404: ML uses math/rand intentionally
			data[i] = scale
		}
	}
	return x.Mul(mask)
}

// SetTraining switches between training (stochastic) and evaluation (identity).
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Training reports whether dropout is active.
func (d *Dropout[B]) Training() bool {
	return d.training
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

// Parameters returns nil: dropout has no trainable state.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}
