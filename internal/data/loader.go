package data

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Batch is one mini-batch of sources [B, L] and targets [B, L+1].
type Batch[B tensor.Backend] struct {
	Src  *tensor.Tensor[int32, B]
	Tgt  *tensor.Tensor[int32, B]
	Size int
}

// Loader splits a dataset into fixed-size mini-batches.
//
// With Shuffle set, each call to Batches draws a new permutation from the
// loader's seeded generator, so epoch k sees the same order on every run.
// A final batch smaller than BatchSize is dropped.
type Loader[B tensor.Backend] struct {
	dataset   *ReverseDataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader over dataset.
func NewLoader[B tensor.Backend](dataset *ReverseDataset, batchSize int, shuffle bool, seed int64) (*Loader[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be positive, got %d", batchSize)
	}
	if batchSize > dataset.Len() {
		return nil, fmt.Errorf("loader: batch size %d exceeds dataset size %d", batchSize, dataset.Len())
	}
	return &Loader[B]{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)), //nolint:gosec // G404: ML uses math/rand intentionally
	}, nil
}

// NumBatches returns the number of full batches per epoch.
func (l *Loader[B]) NumBatches() int {
	return l.dataset.Len() / l.batchSize
}

// Dataset returns the underlying dataset.
func (l *Loader[B]) Dataset() *ReverseDataset {
	return l.dataset
}

// BatchSize returns the batch size.
func (l *Loader[B]) BatchSize() int {
	return l.batchSize
}

// Batches materializes one epoch of batches on backend.
func (l *Loader[B]) Batches(backend B) ([]Batch[B], error) {
	n := l.dataset.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	seqLen := l.dataset.SeqLen()
	vocab := l.dataset.Vocab()
	batches := make([]Batch[B], 0, l.NumBatches())

	for start := 0; start+l.batchSize <= n; start += l.batchSize {
		srcData := make([]int32, 0, l.batchSize*seqLen)
		tgtData := make([]int32, 0, l.batchSize*(seqLen+1))
		for _, idx := range indices[start : start+l.batchSize] {
			src, tgt := l.dataset.Item(idx)
			srcData = append(srcData, src...)
			tgtData = append(tgtData, tgt...)
		}

		if err := vocab.Validate(srcData); err != nil {
			return nil, fmt.Errorf("batch at %d: %w", start, err)
		}
		if err := vocab.Validate(tgtData); err != nil {
			return nil, fmt.Errorf("batch at %d: %w", start, err)
		}

		src, err := tensor.FromSlice(srcData, tensor.Shape{l.batchSize, seqLen}, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to create source tensor: %w", err)
		}
		tgt, err := tensor.FromSlice(tgtData, tensor.Shape{l.batchSize, seqLen + 1}, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to create target tensor: %w", err)
		}

		batches = append(batches, Batch[B]{Src: src, Tgt: tgt, Size: l.batchSize})
	}

	return batches, nil
}
