package autodiff

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// BackwardCapable is implemented by backends that own a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	Tape() *GradientTape
}

// Backward seeds a ones gradient for t and runs the tape backward.
// For a scalar loss this yields ∂loss/∂x for every recorded tensor x.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := model.Forward(x) ...
//	grads := autodiff.Backward(loss, backend)
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32 supported)", t.DType()))
	}

	outputGrad := tensor.MustRaw(t.Shape(), tensor.Float32, backend.Device())
	data := outputGrad.AsFloat32()
	for i := range data {
		data[i] = 1
	}
	return tape.BackwardFrom(t.Raw(), outputGrad, backend)
}
