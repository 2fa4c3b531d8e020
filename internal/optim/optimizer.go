// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - Adam: Adaptive Moment Estimation, the default for the seq2seq model
//   - SGD: Stochastic Gradient Descent with momentum
//
// Design inspired by PyTorch's torch.optim but adapted for Go with type safety.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3}, backend)
//
//	backend.Tape().StartRecording()
//	logits := model.Forward(src, tgtIn)
//	loss := criterion.Forward(logits.Reshape(-1, vocab), labels)
//	grads := autodiff.Backward(loss, backend)
//
//	optimizer.Step(grads)
//	backend.Tape().Clear()
//	optimizer.ZeroGrad()
//
// Updates write straight into parameter storage and never go through the
// backend, so they are not recorded on a gradient tape.
package optim

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// grads maps each parameter's RawTensor to its gradient, as returned by
	// autodiff.Backward. Parameters missing from the map are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// getGradient looks up the gradient for param, attaches it to the parameter
// and returns its data. Returns nil if the parameter took no part in the
// computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor, backend B) []float32 {
	if param == nil {
		return nil
	}
	grad, ok := grads[param.Tensor().Raw()]
	if !ok || grad == nil {
		return nil
	}
	if !grad.Shape().Equal(param.Tensor().Shape()) {
		panic(fmt.Sprintf("optim: gradient for %q has shape %v, want %v",
			param.Name(), grad.Shape(), param.Tensor().Shape()))
	}
	param.SetGrad(tensor.New[float32, B](grad, backend))
	return grad.AsFloat32()
}
