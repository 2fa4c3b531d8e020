package nn

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Attention masks are bool tensors broadcastable against scores of shape
// [batch, heads, query_len, key_len]. A true entry suppresses that position.

// CausalMask returns a [1, 1, seqLen, seqLen] mask where entry (i, j) is true
// for j > i, so no position can attend to a later one.
//
// Example for seqLen=3 (true = blocked):
//
//	[[F, T, T],
//	 [F, F, T],
//	 [F, F, F]]
func CausalMask[B tensor.Backend](seqLen int, backend B) *tensor.Tensor[bool, B] {
	mask := tensor.Zeros[bool](tensor.Shape{1, 1, seqLen, seqLen}, backend)
	data := mask.Data()
	for i := 0; i < seqLen; i++ {
		for j := i + 1; j < seqLen; j++ {
			data[i*seqLen+j] = true
		}
	}
	return mask
}

// PaddingMask returns a [batch, 1, 1, seqLen] mask that is true wherever
// tokens [batch, seqLen] holds padIdx. It blocks every query from attending
// to pad keys.
func PaddingMask[B tensor.Backend](tokens *tensor.Tensor[int32, B], padIdx int32) *tensor.Tensor[bool, B] {
	shape := tokens.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("PaddingMask: expected [batch, seq] tokens, got shape %v", shape))
	}
	mask := tensor.Zeros[bool](tensor.Shape{shape[0], 1, 1, shape[1]}, tokens.Backend())
	data := mask.Data()
	for i, id := range tokens.Data() {
		data[i] = id == padIdx
	}
	return mask
}

// CombineMasks returns the broadcast logical OR of two masks.
// A nil mask is treated as "nothing blocked".
func CombineMasks[B tensor.Backend](a, b *tensor.Tensor[bool, B]) *tensor.Tensor[bool, B] {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("CombineMasks: %v", err))
	}

	out := tensor.Zeros[bool](shape, a.Backend())
	outStrides := shape.ComputeStrides()
	aStrides := tensor.BroadcastStrides(a.Shape(), shape)
	bStrides := tensor.BroadcastStrides(b.Shape(), shape)
	aData, bData, data := a.Data(), b.Data(), out.Data()

	for i := range data {
		ai, bi, rem := 0, 0, i
		for d, s := range outStrides {
			coord := rem / s
			rem %= s
			ai += coord * aStrides[d]
			bi += coord * bStrides[d]
		}
		data[i] = aData[ai] || bData[bi]
	}
	return out
}
