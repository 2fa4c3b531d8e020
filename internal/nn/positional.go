package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// PositionalEncoding adds fixed sinusoidal position codes to embeddings and
// then applies dropout.
//
// Formula:
//
//	PE(pos, 2i)   = sin(pos / 10000^(2i/dim))
//	PE(pos, 2i+1) = cos(pos / 10000^(2i/dim))
//
// The [maxLen, dim] table is computed once at construction and never
// learned. Forward uses its first L rows; L > maxLen panics.
//
// Example:
//
//	pe := nn.NewPositionalEncoding(6, 512, 0.1, rng, backend)
//	x = pe.Forward(x) // [B, L, 512], L <= 6
type PositionalEncoding[B tensor.Backend] struct {
	Dropout *Dropout[B]
	table   []float32
	maxLen  int
	dim     int
	backend B
}

// NewPositionalEncoding precomputes the sinusoidal table.
func NewPositionalEncoding[B tensor.Backend](maxLen, dim int, dropout float32, rng *rand.Rand, backend B) *PositionalEncoding[B] {
	if maxLen <= 0 || dim <= 0 {
		panic(fmt.Sprintf("NewPositionalEncoding: maxLen and dim must be positive, got %d and %d", maxLen, dim))
	}

	table := make([]float32, maxLen*dim)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i += 2 {
			// 1 / 10000^(i/dim) for the even index i = 2k
			divTerm := math.Exp(float64(i) * -(math.Log(10000.0) / float64(dim)))
			angle := float64(pos) * divTerm
			table[pos*dim+i] = float32(math.Sin(angle))
			if i+1 < dim {
				table[pos*dim+i+1] = float32(math.Cos(angle))
			}
		}
	}

	return &PositionalEncoding[B]{
		Dropout: NewDropout(dropout, rng, backend),
		table:   table,
		maxLen:  maxLen,
		dim:     dim,
		backend: backend,
	}
}

// Forward returns Dropout(x + PE[:L]) for x of shape [B, L, dim].
func (p *PositionalEncoding[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != p.dim {
		panic(fmt.Sprintf("PositionalEncoding.Forward: expected [batch, seq, %d], got %v", p.dim, shape))
	}
	pe := p.Encoding(shape[1]).Reshape(1, shape[1], p.dim)
	return p.Dropout.Forward(x.Add(pe))
}

// Encoding returns a fresh copy of the first seqLen rows of the table,
// shape [seqLen, dim]. The result is identical on every call.
func (p *PositionalEncoding[B]) Encoding(seqLen int) *tensor.Tensor[float32, B] {
	if seqLen <= 0 || seqLen > p.maxLen {
		panic(fmt.Sprintf("PositionalEncoding: sequence length %d exceeds maximum %d", seqLen, p.maxLen))
	}
	out, err := tensor.FromSlice(p.table[:seqLen*p.dim], tensor.Shape{seqLen, p.dim}, p.backend)
	if err != nil {
		panic(err)
	}
	return out
}

// MaxLen returns the longest supported sequence.
func (p *PositionalEncoding[B]) MaxLen() int {
	return p.maxLen
}

// Parameters returns nil: the table is fixed.
func (p *PositionalEncoding[B]) Parameters() []*Parameter[B] {
	return nil
}

// SetTraining toggles dropout.
func (p *PositionalEncoding[B]) SetTraining(training bool) {
	p.Dropout.SetTraining(training)
}
