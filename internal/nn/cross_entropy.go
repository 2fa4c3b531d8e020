package nn

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// CrossEntropyLoss computes the mean softmax cross-entropy between logits
// and integer class targets.
//
// The backend fuses log-softmax and negative log-likelihood, so the gradient
// with respect to logits is (softmax - one_hot) / N.
//
// Example:
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	loss := criterion.Forward(logits.Reshape(-1, vocab), labels.Reshape(-1))
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a new cross-entropy loss.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{backend: backend}
}

// Forward returns the scalar loss for logits [N, C] and targets [N].
func (c *CrossEntropyLoss[B]) Forward(logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	ls, ts := logits.Shape(), targets.Shape()
	if len(ls) != 2 || len(ts) != 1 || ls[0] != ts[0] {
		panic(fmt.Sprintf("CrossEntropyLoss.Forward: expected logits [N, C] and targets [N], got %v and %v", ls, ts))
	}
	return tensor.New[float32, B](c.backend.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
}

// Accuracy returns the fraction of rows of logits [N, C] whose argmax equals
// the target.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) float32 {
	preds := logits.Argmax(-1).Data()
	want := targets.Data()
	if len(preds) != len(want) {
		panic(fmt.Sprintf("Accuracy: %d predictions for %d targets", len(preds), len(want)))
	}
	if len(want) == 0 {
		return 0
	}
	correct := 0
	for i, p := range preds {
		if p == want[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(want))
}
