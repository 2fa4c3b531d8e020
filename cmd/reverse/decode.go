package main

import (
	"flag"

	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/generate"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// samplingFlags holds the decoding flags shared by commands that decode.
type samplingFlags struct {
	temperature float64
	topK        int
	topP        float64
	seed        int64
}

func addSamplingFlags(fs *flag.FlagSet) *samplingFlags {
	f := &samplingFlags{}
	fs.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature (0 = greedy argmax)")
	fs.IntVar(&f.topK, "top-k", 0, "Sample only from the K most likely letters (0 = disabled)")
	fs.Float64Var(&f.topP, "top-p", 1, "Nucleus sampling threshold in [0, 1] (1 = disabled)")
	fs.Int64Var(&f.seed, "sample-seed", -1, "Seed for sampling (-1 = random)")
	return f
}

func (f *samplingFlags) config() (generate.SamplingConfig, error) {
	cfg := generate.SamplingConfig{
		Temperature: float32(f.temperature),
		TopK:        f.topK,
		TopP:        float32(f.topP),
		Seed:        f.seed,
	}
	if err := cfg.Validate(); err != nil {
		return generate.SamplingConfig{}, err
	}
	return cfg, nil
}

// reverseIDs decodes one source sequence and returns as many ids as src has.
func reverseIDs[B tensor.Backend](model *nn.Transformer[B], src []int32, sampling generate.SamplingConfig, backend B) ([]int32, error) {
	decoder, err := generate.NewDecoder(model, generate.Config{BOS: data.BOSID, Sampling: sampling}, backend)
	if err != nil {
		return nil, err
	}
	srcTensor, err := tensor.FromSlice(src, tensor.Shape{1, len(src)}, backend)
	if err != nil {
		return nil, err
	}
	out, err := decoder.Decode(srcTensor)
	if err != nil {
		return nil, err
	}
	return out.Data(), nil
}
