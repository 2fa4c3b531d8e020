// Package nn implements the neural network modules of the seq2seq Transformer.
//
// This package provides the building blocks and their assembly:
//   - Module interface and trainable Parameter
//   - Linear, Embedding, Dropout, NormalizationLayer, FeedForward
//   - ScaledDotProductAttention, MultiHeadAttention, attention masks
//   - PositionalEncoding
//   - EncoderLayer, DecoderLayer and the Transformer model
//   - CrossEntropyLoss
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
// Shape and configuration violations inside Forward panic; constructors of
// the full model return errors.
package nn

import (
	"github.com/born-ml/seq2seq/internal/tensor"
)

// Module is the base interface for single-input neural network components.
//
// Multi-input blocks (attention, encoder and decoder layers) expose their
// own Forward signatures but still provide Parameters.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module, in a
	// stable order.
	Parameters() []*Parameter[B]
}

// Trainable is implemented by modules whose behavior differs between
// training and evaluation (dropout).
type Trainable interface {
	SetTraining(training bool)
}

// scope prefixes parameter names with "prefix." so names read as paths
// from the model root, e.g. "encoder.0.self_attn.w_q.weight".
func scope[B tensor.Backend](prefix string, params []*Parameter[B]) []*Parameter[B] {
	for _, p := range params {
		p.name = prefix + "." + p.name
	}
	return params
}

func setTraining(training bool, modules ...Trainable) {
	for _, m := range modules {
		m.SetTraining(training)
	}
}
