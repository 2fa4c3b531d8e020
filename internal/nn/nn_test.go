package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(7)) //nolint:gosec // G404: deterministic test data
}

func randomInput(shape tensor.Shape, backend *cpu.CPUBackend) *tensor.Tensor[float32, *cpu.CPUBackend] {
	return tensor.Randn(shape, newRNG(), backend)
}

func ids(t *testing.T, data []int32, shape tensor.Shape, backend *cpu.CPUBackend) *tensor.Tensor[int32, *cpu.CPUBackend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return out
}

func smallConfig() nn.TransformerConfig {
	cfg := nn.DefaultTransformerConfig()
	cfg.DModel = 16
	cfg.NumHeads = 4
	cfg.DFF = 32
	cfg.NumEncoderLayers = 2
	cfg.NumDecoderLayers = 2
	cfg.MaxLen = 12
	cfg.Dropout = 0.1
	return cfg
}
