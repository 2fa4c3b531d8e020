package generate

import (
	"fmt"

	"github.com/born-ml/seq2seq/internal/autodiff"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// Config configures decoding.
type Config struct {
	// MaxTokens is the number of tokens to produce. 0 = source length.
	MaxTokens int

	// BOS is the token the decoder starts from.
	BOS int32

	// Sampling chooses each next token. The zero value is greedy.
	Sampling SamplingConfig
}

// Decoder runs autoregressive decoding with a trained Transformer.
type Decoder[B tensor.Backend] struct {
	model   *nn.Transformer[B]
	sampler *Sampler
	config  Config
	backend B
}

// NewDecoder creates a decoder for model.
func NewDecoder[B tensor.Backend](model *nn.Transformer[B], config Config, backend B) (*Decoder[B], error) {
	if err := config.Sampling.Validate(); err != nil {
		return nil, err
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("decode: max tokens must be >= 0, got %d", config.MaxTokens)
	}
	if err := checkID(config.BOS, model.Config().VocabSize); err != nil {
		return nil, fmt.Errorf("decode: bos: %w", err)
	}
	return &Decoder[B]{
		model:   model,
		sampler: NewSampler(config.Sampling),
		config:  config,
		backend: backend,
	}, nil
}

// Greedy decodes src [B, L] by argmax and returns [B, L] token ids.
func Greedy[B tensor.Backend](model *nn.Transformer[B], src *tensor.Tensor[int32, B], bos int32, backend B) (*tensor.Tensor[int32, B], error) {
	d, err := NewDecoder(model, Config{BOS: bos, Sampling: GreedySampling()}, backend)
	if err != nil {
		return nil, err
	}
	return d.Decode(src)
}

// Decode encodes src [B, Ls] once and produces [B, n] token ids, where n is
// MaxTokens or Ls. The leading <bos> is not part of the result.
//
// The model runs in evaluation mode and nothing is recorded on a gradient
// tape; both are restored on return.
func (d *Decoder[B]) Decode(src *tensor.Tensor[int32, B]) (out *tensor.Tensor[int32, B], err error) {
	shape := src.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("decode: expected [batch, seq] source, got shape %v", shape)
	}
	cfg := d.model.Config()
	for _, id := range src.Data() {
		if err := checkID(id, cfg.VocabSize); err != nil {
			return nil, fmt.Errorf("decode: source: %w", err)
		}
	}

	batch := shape[0]
	steps := d.config.MaxTokens
	if steps == 0 {
		steps = shape[1]
	}
	if steps > cfg.MaxLen {
		return nil, fmt.Errorf("decode: %d steps exceed model max_len %d", steps, cfg.MaxLen)
	}

	defer d.evalMode()()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode: %v", r)
		}
	}()

	// Rows of the growing decoder input, each starting with <bos>.
	prefix := make([][]int32, batch)
	for b := range prefix {
		prefix[b] = append(make([]int32, 0, steps+1), d.config.BOS)
	}

	var memory *tensor.Tensor[float32, B]
	var masks nn.Masks[B]
	vocab := cfg.VocabSize

	for step := 0; step < steps; step++ {
		tgt, err := rowsTensor(prefix, d.backend)
		if err != nil {
			return nil, err
		}
		masks = d.model.BuildMasks(src, tgt)
		if memory == nil {
			memory = d.model.Encode(src, masks.Src)
		}

		logits := d.model.Decode(tgt, memory, masks.Tgt, masks.Memory).Data()
		cur := step + 1
		for b := 0; b < batch; b++ {
			last := logits[(b*cur+cur-1)*vocab : (b*cur+cur)*vocab]
			prefix[b] = append(prefix[b], d.sampler.Sample(last))
		}
	}

	result := make([][]int32, batch)
	for b := range prefix {
		result[b] = prefix[b][1:]
	}
	return rowsTensor(result, d.backend)
}

// evalMode switches the model to evaluation and pauses tape recording. The
// returned function restores the previous state.
func (d *Decoder[B]) evalMode() func() {
	wasTraining := d.model.Training()
	d.model.SetTraining(false)

	var tape *autodiff.GradientTape
	if bc, ok := any(d.backend).(autodiff.BackwardCapable); ok && bc.Tape().IsRecording() {
		tape = bc.Tape()
		tape.StopRecording()
	}

	return func() {
		d.model.SetTraining(wasTraining)
		if tape != nil {
			tape.StartRecording()
		}
	}
}

func rowsTensor[B tensor.Backend](rows [][]int32, backend B) (*tensor.Tensor[int32, B], error) {
	width := len(rows[0])
	flat := make([]int32, 0, len(rows)*width)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	return tensor.FromSlice(flat, tensor.Shape{len(rows), width}, backend)
}

func checkID(id int32, vocab int) error {
	if id < 0 || int(id) >= vocab {
		return fmt.Errorf("token id %d outside vocabulary of size %d", id, vocab)
	}
	return nil
}
