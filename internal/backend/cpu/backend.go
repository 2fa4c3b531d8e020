// Package cpu implements the reference CPU backend.
//
// All arithmetic runs on float32. Int32 tensors carry token ids and bool
// tensors carry masks; shape operations and Where work on any dtype by
// moving raw elements.
package cpu

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/parallel"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// CPUBackend implements tensor.Backend in pure Go.
//
//nolint:revive // CPUBackend reads better at call sites than cpu.Backend
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a CPU backend that parallelizes large matmuls across all cores.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallel settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with NumPy-style broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with NumPy-style broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with NumPy-style broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	requireFloat32(name, a)
	requireFloat32(name, b)

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result := tensor.MustRaw(outShape, tensor.Float32, cpu.device)
	out := result.AsFloat32()
	aData, bData := a.AsFloat32(), b.AsFloat32()

	if !needsBroadcast {
		for i := range out {
			out[i] = f(aData[i], bData[i])
		}
		return result
	}

	outStrides := outShape.ComputeStrides()
	aStrides := tensor.BroadcastStrides(a.Shape(), outShape)
	bStrides := tensor.BroadcastStrides(b.Shape(), outShape)
	for i := range out {
		out[i] = f(aData[flatIndex(i, outStrides, aStrides)], bData[flatIndex(i, outStrides, bStrides)])
	}
	return result
}

func requireFloat32(name string, t *tensor.RawTensor) {
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtype %s (float32 required)", name, t.DType()))
	}
}
