package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Embedding is a lookup table from token ids to dense vectors.
//
// Weights are drawn from N(0, 1). The row at PaddingIdx starts at zero and
// never receives a gradient, so it keeps that value for the life of the model.
//
// Example:
//
//	embed := nn.NewEmbedding(28, 512, 0, rng, backend)
//	vectors := embed.Forward(ids) // [B, L] int32 -> [B, L, 512]
type Embedding[B tensor.Backend] struct {
	weight        *Parameter[B]
	numEmbeddings int
	embeddingDim  int
	paddingIdx    int
}

// NewEmbedding creates an embedding table. paddingIdx < 0 disables the
// padding row.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim, paddingIdx int, rng *rand.Rand, backend B) *Embedding[B] {
	if numEmbeddings <= 0 || embeddingDim <= 0 {
		panic(fmt.Sprintf("NewEmbedding: invalid size [%d, %d]", numEmbeddings, embeddingDim))
	}
	if paddingIdx >= numEmbeddings {
		panic(fmt.Sprintf("NewEmbedding: padding index %d outside vocabulary of %d", paddingIdx, numEmbeddings))
	}

	weight := tensor.Randn(tensor.Shape{numEmbeddings, embeddingDim}, rng, backend)
	if paddingIdx >= 0 {
		row := weight.Data()[paddingIdx*embeddingDim : (paddingIdx+1)*embeddingDim]
		clear(row)
	}

	return &Embedding[B]{
		weight:        NewParameter("weight", weight),
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		paddingIdx:    paddingIdx,
	}
}

// Forward looks up the vector for every id. Ids outside [0, numEmbeddings)
// panic.
func (e *Embedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return e.weight.Tensor().Embedding(indices, e.paddingIdx)
}

// Parameters returns [weight].
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// Weight returns the embedding table parameter.
func (e *Embedding[B]) Weight() *Parameter[B] {
	return e.weight
}

// PaddingIdx returns the frozen padding row, or -1.
func (e *Embedding[B]) PaddingIdx() int {
	return e.paddingIdx
}
