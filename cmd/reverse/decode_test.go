package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/generate"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

func parseSampling(t *testing.T, args ...string) (generate.SamplingConfig, error) {
	t.Helper()
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	f := addSamplingFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f.config()
}

func TestSamplingFlagsDefaultToGreedy(t *testing.T) {
	cfg, err := parseSampling(t)
	require.NoError(t, err)
	assert.Equal(t, generate.GreedySampling(), cfg)
}

func TestSamplingFlagsParse(t *testing.T) {
	cfg, err := parseSampling(t, "-temperature", "0.8", "-top-k", "5", "-top-p", "0.9", "-sample-seed", "7")
	require.NoError(t, err)
	assert.Equal(t, generate.SamplingConfig{Temperature: 0.8, TopK: 5, TopP: 0.9, Seed: 7}, cfg)
}

func TestSamplingFlagsRejectInvalid(t *testing.T) {
	tests := [][]string{
		{"-temperature", "-1"},
		{"-top-k", "-2"},
		{"-top-p", "1.5"},
	}
	for _, args := range tests {
		_, err := parseSampling(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}

func smallModel(t *testing.T, backend *cpu.CPUBackend) *nn.Transformer[*cpu.CPUBackend] {
	t.Helper()
	cfg := nn.DefaultTransformerConfig()
	cfg.DModel = 16
	cfg.NumHeads = 2
	cfg.DFF = 32
	cfg.NumEncoderLayers = 1
	cfg.NumDecoderLayers = 1
	cfg.MaxLen = 8
	model, err := nn.NewTransformer(cfg, backend)
	require.NoError(t, err)
	return model
}

func TestReverseIDsGreedyMatchesGenerate(t *testing.T) {
	backend := cpu.New()
	model := smallModel(t, backend)
	src, err := data.NewVocab().Encode("abcdef")
	require.NoError(t, err)

	got, err := reverseIDs(model, src, generate.GreedySampling(), backend)
	require.NoError(t, err)

	srcTensor, err := tensor.FromSlice(src, tensor.Shape{1, len(src)}, backend)
	require.NoError(t, err)
	want, err := generate.Greedy(model, srcTensor, data.BOSID, backend)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got)
}

func TestReverseIDsSamplingIsSeeded(t *testing.T) {
	backend := cpu.New()
	model := smallModel(t, backend)
	src, err := data.NewVocab().Encode("abcdef")
	require.NoError(t, err)

	sampling, err := parseSampling(t, "-temperature", "1.5", "-top-k", "10", "-sample-seed", "3")
	require.NoError(t, err)

	first, err := reverseIDs(model, src, sampling, backend)
	require.NoError(t, err)
	second, err := reverseIDs(model, src, sampling, backend)
	require.NoError(t, err)

	require.Len(t, first, len(src))
	assert.Equal(t, first, second)
	for _, id := range first {
		if id < 0 || int(id) >= model.Config().VocabSize {
			t.Errorf("sampled id %d outside the vocabulary", id)
		}
	}
}
