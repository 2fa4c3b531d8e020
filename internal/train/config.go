package train

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/nn"
)

// ErrInvalidRunConfig is returned when a RunConfig fails validation.
var ErrInvalidRunConfig = errors.New("invalid run config")

// OptimizerConfig selects and configures the optimizer.
type OptimizerConfig struct {
	Name     string  `yaml:"name"` // "adam" or "sgd"
	LR       float32 `yaml:"lr"`
	Beta1    float32 `yaml:"beta1"`
	Beta2    float32 `yaml:"beta2"`
	Eps      float32 `yaml:"eps"`
	Momentum float32 `yaml:"momentum"`
}

// DataConfig describes the synthetic reversal dataset and its loader.
type DataConfig struct {
	DatasetSize int   `yaml:"dataset_size"`
	SeqLen      int   `yaml:"seq_len"`
	BatchSize   int   `yaml:"batch_size"`
	Shuffle     bool  `yaml:"shuffle"`
	Seed        int64 `yaml:"seed"`
}

// RunConfig is everything needed to reproduce a training run.
//
// Example run.yaml:
//
//	epochs: 10
//	model:
//	  d_model: 64
//	  num_heads: 4
//	optimizer:
//	  name: adam
//	  lr: 0.001
//	data:
//	  seq_len: 10
//	  batch_size: 32
type RunConfig struct {
	Epochs     int                  `yaml:"epochs"`
	Checkpoint string               `yaml:"checkpoint"`
	Model      nn.TransformerConfig `yaml:"model"`
	Optimizer  OptimizerConfig      `yaml:"optimizer"`
	Data       DataConfig           `yaml:"data"`
}

// DefaultRunConfig returns a configuration that learns the reversal task
// on a CPU in a few minutes.
func DefaultRunConfig() RunConfig {
	model := nn.DefaultTransformerConfig()
	model.VocabSize = data.NewVocab().Size()
	model.PadIdx = int(data.PadID)

	return RunConfig{
		Epochs:     10,
		Checkpoint: "reverse.safetensors",
		Model:      model,
		Optimizer: OptimizerConfig{
			Name:  "adam",
			LR:    0.001,
			Beta1: 0.9,
			Beta2: 0.999,
			Eps:   1e-8,
		},
		Data: DataConfig{
			DatasetSize: 2000,
			SeqLen:      10,
			BatchSize:   32,
			Shuffle:     true,
			Seed:        1,
		},
	}
}

// LoadRunConfig reads a YAML file on top of DefaultRunConfig. Keys missing
// from the file keep their default values.
func LoadRunConfig(path string) (RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("failed to read run config: %w", err)
	}
	return ParseRunConfig(raw)
}

// ParseRunConfig decodes YAML on top of DefaultRunConfig and validates the
// result.
func ParseRunConfig(raw []byte) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("failed to parse run config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// YAML encodes the config.
func (c RunConfig) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode run config: %w", err)
	}
	return string(out), nil
}

// Validate checks the config as a whole, including the model section.
func (c RunConfig) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRunConfig, err)
	}

	vocab := data.NewVocab().Size()
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidRunConfig, c.Epochs)
	case c.Model.VocabSize != vocab:
		return fmt.Errorf("%w: model vocab_size %d does not match vocabulary size %d",
			ErrInvalidRunConfig, c.Model.VocabSize, vocab)
	case c.Model.PadIdx != int(data.PadID):
		return fmt.Errorf("%w: model pad_idx must be %d, got %d", ErrInvalidRunConfig, data.PadID, c.Model.PadIdx)
	case c.Data.SeqLen <= 0:
		return fmt.Errorf("%w: seq_len must be positive, got %d", ErrInvalidRunConfig, c.Data.SeqLen)
	case c.Model.MaxLen < c.Data.SeqLen+1:
		return fmt.Errorf("%w: max_len %d must cover seq_len+1 = %d",
			ErrInvalidRunConfig, c.Model.MaxLen, c.Data.SeqLen+1)
	case c.Data.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidRunConfig, c.Data.BatchSize)
	case c.Data.DatasetSize < c.Data.BatchSize:
		return fmt.Errorf("%w: dataset_size %d smaller than batch_size %d",
			ErrInvalidRunConfig, c.Data.DatasetSize, c.Data.BatchSize)
	case c.Optimizer.LR <= 0:
		return fmt.Errorf("%w: lr must be positive, got %v", ErrInvalidRunConfig, c.Optimizer.LR)
	case c.Optimizer.Name != "adam" && c.Optimizer.Name != "sgd":
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalidRunConfig, c.Optimizer.Name)
	}
	return nil
}
