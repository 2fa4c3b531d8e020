// Package train runs the teacher-forced training loop for the seq2seq model.
//
// All mutable training state lives in an explicit Trainer value: model,
// optimizer, gradient tape (through the backend) and a State record of
// epoch, step, phase and loss history. Steps run strictly one after another.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/born-ml/seq2seq/internal/autodiff"
	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/optim"
	"github.com/born-ml/seq2seq/internal/tensor"
)

// ErrNonFiniteLoss is returned when a step produces a NaN or infinite loss.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// Phase is the part of a training step currently executing.
type Phase int

// Step phases, in execution order.
const (
	PhaseIdle Phase = iota
	PhaseForward
	PhaseLoss
	PhaseBackward
	PhaseUpdate
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseForward:
		return "forward"
	case PhaseLoss:
		return "loss"
	case PhaseBackward:
		return "backward"
	case PhaseUpdate:
		return "update"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State records training progress.
type State struct {
	Epoch       int       // completed epochs
	Step        int       // completed steps
	Phase       Phase     // phase of the step in flight, PhaseIdle between steps
	LossHistory []float32 // loss of every completed step
	EpochLoss   []float32 // mean loss of every completed epoch
}

// BatchSource yields the batches of one epoch. *data.Loader implements it.
type BatchSource[B tensor.Backend] interface {
	Batches(backend B) ([]data.Batch[B], error)
}

// Metrics summarizes an evaluation pass.
type Metrics struct {
	Loss     float32
	Accuracy float32 // fraction of target tokens predicted exactly
	Batches  int
}

// Trainer owns one training run.
type Trainer[B autodiff.BackwardCapable] struct {
	model     *nn.Transformer[B]
	optimizer optim.Optimizer
	criterion *nn.CrossEntropyLoss[B]
	backend   B
	state     State
	runID     uuid.UUID
	logger    *slog.Logger
	onEpoch   func(epoch int, loss float32)
}

// Option configures a Trainer.
type Option func(*trainerOptions)

type trainerOptions struct {
	logger  *slog.Logger
	runID   uuid.UUID
	onEpoch func(epoch int, loss float32)
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *trainerOptions) { o.logger = logger }
}

// WithRunID fixes the run id instead of generating a random one.
func WithRunID(id uuid.UUID) Option {
	return func(o *trainerOptions) { o.runID = id }
}

// WithEpochHook registers a callback invoked after every epoch.
func WithEpochHook(fn func(epoch int, loss float32)) Option {
	return func(o *trainerOptions) { o.onEpoch = fn }
}

// NewTrainer creates a trainer for model. The backend must be the one the
// model was built on.
func NewTrainer[B autodiff.BackwardCapable](model *nn.Transformer[B], optimizer optim.Optimizer, backend B, opts ...Option) *Trainer[B] {
	o := trainerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		runID:  uuid.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Trainer[B]{
		model:     model,
		optimizer: optimizer,
		criterion: nn.NewCrossEntropyLoss(backend),
		backend:   backend,
		runID:     o.runID,
		logger:    o.logger.With("run", o.runID.String()),
		onEpoch:   o.onEpoch,
	}
}

// NewOptimizer builds the optimizer named in cfg for params.
func NewOptimizer[B tensor.Backend](cfg OptimizerConfig, params []*nn.Parameter[B], backend B) (optim.Optimizer, error) {
	switch cfg.Name {
	case "adam", "":
		return optim.NewAdam(params, optim.AdamConfig{
			LR:    cfg.LR,
			Betas: [2]float32{cfg.Beta1, cfg.Beta2},
			Eps:   cfg.Eps,
		}, backend), nil
	case "sgd":
		return optim.NewSGD(params, optim.SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}, backend), nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", ErrInvalidRunConfig, cfg.Name)
	}
}

// State returns a snapshot of the training state.
func (t *Trainer[B]) State() State {
	s := t.state
	s.LossHistory = append([]float32(nil), t.state.LossHistory...)
	s.EpochLoss = append([]float32(nil), t.state.EpochLoss...)
	return s
}

// RunID returns the id attached to every log line and checkpoint.
func (t *Trainer[B]) RunID() uuid.UUID {
	return t.runID
}

// Model returns the model being trained.
func (t *Trainer[B]) Model() *nn.Transformer[B] {
	return t.model
}

// Step runs one teacher-forced update on batch and returns its loss.
//
// The decoder reads tgt[:, :-1] and is scored against tgt[:, 1:]. A panic
// raised by a shape or id violation is returned as an error naming the step
// and phase; the tape is cleared and the parameters are left untouched
// unless the update phase had begun.
func (t *Trainer[B]) Step(batch data.Batch[B]) (loss float32, err error) {
	tape := t.backend.Tape()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %d failed in %s phase: %v", t.state.Step+1, t.state.Phase, r)
		}
		if err != nil {
			tape.StopRecording()
			tape.Clear()
			t.optimizer.ZeroGrad()
			t.state.Phase = PhaseIdle
		}
	}()

	decoderIn, labels, err := SplitTarget(batch.Tgt, t.backend)
	if err != nil {
		return 0, err
	}

	t.model.SetTraining(true)
	tape.Clear()
	tape.StartRecording()

	t.state.Phase = PhaseForward
	logits := t.model.Forward(batch.Src, decoderIn)

	t.state.Phase = PhaseLoss
	vocab := logits.Shape()[2]
	lossTensor := t.criterion.Forward(logits.Reshape(-1, vocab), labels)
	loss = lossTensor.Item()
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
		return 0, fmt.Errorf("step %d: %w: %v", t.state.Step+1, ErrNonFiniteLoss, loss)
	}

	t.state.Phase = PhaseBackward
	grads := autodiff.Backward(lossTensor, t.backend)
	tape.StopRecording()

	t.state.Phase = PhaseUpdate
	t.optimizer.Step(grads)
	tape.Clear()
	t.optimizer.ZeroGrad()

	t.state.Phase = PhaseIdle
	t.state.Step++
	t.state.LossHistory = append(t.state.LossHistory, loss)
	return loss, nil
}

// Run trains for the given number of epochs, logging the mean loss of each.
// It stops between steps when ctx is cancelled and aborts on the first
// failing step.
func (t *Trainer[B]) Run(ctx context.Context, source BatchSource[B], epochs int) error {
	for e := 0; e < epochs; e++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("training interrupted before epoch %d: %w", t.state.Epoch+1, err)
		}

		batches, err := source.Batches(t.backend)
		if err != nil {
			return fmt.Errorf("epoch %d: failed to load batches: %w", t.state.Epoch+1, err)
		}
		if len(batches) == 0 {
			return fmt.Errorf("epoch %d: no batches", t.state.Epoch+1)
		}

		var sum float64
		for i, batch := range batches {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("training interrupted at epoch %d batch %d: %w", t.state.Epoch+1, i, err)
			}
			loss, err := t.Step(batch)
			if err != nil {
				return fmt.Errorf("epoch %d: %w", t.state.Epoch+1, err)
			}
			sum += float64(loss)
		}

		mean := float32(sum / float64(len(batches)))
		t.state.Epoch++
		t.state.EpochLoss = append(t.state.EpochLoss, mean)
		t.logger.Info("epoch complete",
			"epoch", t.state.Epoch,
			"loss", mean,
			"steps", len(batches),
		)
		if t.onEpoch != nil {
			t.onEpoch(t.state.Epoch, mean)
		}
	}
	return nil
}

// Evaluate computes the mean loss and token accuracy over source with
// dropout disabled and nothing recorded. Training mode is restored after.
func (t *Trainer[B]) Evaluate(source BatchSource[B]) (Metrics, error) {
	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	t.model.SetTraining(false)
	defer func() {
		t.model.SetTraining(true)
		if wasRecording {
			tape.StartRecording()
		}
	}()

	batches, err := source.Batches(t.backend)
	if err != nil {
		return Metrics{}, fmt.Errorf("evaluate: failed to load batches: %w", err)
	}
	if len(batches) == 0 {
		return Metrics{}, errors.New("evaluate: no batches")
	}

	var lossSum, accSum float64
	for _, batch := range batches {
		decoderIn, labels, err := SplitTarget(batch.Tgt, t.backend)
		if err != nil {
			return Metrics{}, err
		}
		logits := t.model.Forward(batch.Src, decoderIn)
		flat := logits.Reshape(-1, logits.Shape()[2])
		lossSum += float64(t.criterion.Forward(flat, labels).Item())
		accSum += float64(nn.Accuracy(flat, labels))
	}

	n := float64(len(batches))
	m := Metrics{Loss: float32(lossSum / n), Accuracy: float32(accSum / n), Batches: len(batches)}
	t.logger.Info("evaluation", "loss", m.Loss, "accuracy", m.Accuracy, "batches", m.Batches)
	return m, nil
}

// SplitTarget returns the decoder input tgt[:, :-1] with shape [B, L-1] and
// the flattened labels tgt[:, 1:] with shape [B*(L-1)].
func SplitTarget[B tensor.Backend](tgt *tensor.Tensor[int32, B], backend B) (decoderIn, labels *tensor.Tensor[int32, B], err error) {
	shape := tgt.Shape()
	if len(shape) != 2 || shape[1] < 2 {
		return nil, nil, fmt.Errorf("target must be [batch, len>=2], got shape %v", shape)
	}
	rows, cols := shape[0], shape[1]
	src := tgt.Data()
	in := make([]int32, 0, rows*(cols-1))
	out := make([]int32, 0, rows*(cols-1))
	for r := 0; r < rows; r++ {
		row := src[r*cols : (r+1)*cols]
		in = append(in, row[:cols-1]...)
		out = append(out, row[1:]...)
	}

	decoderIn, err = tensor.FromSlice(in, tensor.Shape{rows, cols - 1}, backend)
	if err != nil {
		return nil, nil, err
	}
	labels, err = tensor.FromSlice(out, tensor.Shape{rows * (cols - 1)}, backend)
	if err != nil {
		return nil, nil, err
	}
	return decoderIn, labels, nil
}
