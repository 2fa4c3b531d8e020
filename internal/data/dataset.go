package data

import (
	"fmt"
	"math/rand"
	"slices"
)

// ReverseDataset holds random letter sequences paired with their reversal.
//
// Sample i is (src, tgt) where src is SeqLen random letters and
// tgt = <bos> + reverse(src). All samples are generated up front from the
// seed, so the dataset is identical across runs.
type ReverseDataset struct {
	vocab   *Vocab
	samples [][]int32
	seqLen  int
}

// NewReverseDataset generates n sequences of length seqLen.
func NewReverseDataset(vocab *Vocab, n, seqLen int, seed int64) (*ReverseDataset, error) {
	if n <= 0 || seqLen <= 0 {
		return nil, fmt.Errorf("reverse dataset: size and sequence length must be positive, got %d and %d", n, seqLen)
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: ML uses math/rand intentionally
	samples := make([][]int32, n)
	for i := range samples {
		seq := make([]int32, seqLen)
		for j := range seq {
			seq[j] = vocab.LetterID(rng.Intn(vocab.Letters()))
		}
		samples[i] = seq
	}

	return &ReverseDataset{vocab: vocab, samples: samples, seqLen: seqLen}, nil
}

// Len returns the number of samples.
func (d *ReverseDataset) Len() int {
	return len(d.samples)
}

// SeqLen returns the source sequence length. Targets are one longer.
func (d *ReverseDataset) SeqLen() int {
	return d.seqLen
}

// Vocab returns the dataset vocabulary.
func (d *ReverseDataset) Vocab() *Vocab {
	return d.vocab
}

// Item returns copies of sample i: src [L] and tgt [L+1].
func (d *ReverseDataset) Item(i int) (src, tgt []int32) {
	src = slices.Clone(d.samples[i])
	return src, Target(src)
}

// Target returns <bos> followed by src reversed.
func Target(src []int32) []int32 {
	tgt := make([]int32, 0, len(src)+1)
	tgt = append(tgt, BOSID)
	for i := len(src) - 1; i >= 0; i-- {
		tgt = append(tgt, src[i])
	}
	return tgt
}
