package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	s := toFloat32("MulScalar", scalar)
	return cpu.unary("MulScalar", x, func(v float32) float32 { return v * s })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	s := toFloat32("AddScalar", scalar)
	return cpu.unary("AddScalar", x, func(v float32) float32 { return v + s })
}

// Sqrt computes the element-wise square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x, func(v float32) float32 { return float32(math.Sqrt(float64(v))) })
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float32) float32 { return max(v, 0) })
}

func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	requireFloat32(name, x)
	result := tensor.MustRaw(x.Shape(), tensor.Float32, cpu.device)
	out, in := result.AsFloat32(), x.AsFloat32()
	for i, v := range in {
		out[i] = f(v)
	}
	return result
}

func toFloat32(name string, scalar any) float32 {
	switch s := scalar.(type) {
	case float32:
		return s
	case float64:
		return float32(s)
	case int:
		return float32(s)
	case int32:
		return float32(s)
	default:
		panic(fmt.Sprintf("%s: unsupported scalar type %T", name, scalar))
	}
}
