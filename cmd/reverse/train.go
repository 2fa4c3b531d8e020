package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/born-ml/seq2seq/internal/autodiff"
	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/generate"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/serialization"
	"github.com/born-ml/seq2seq/internal/tensor"
	"github.com/born-ml/seq2seq/internal/train"
)

type trainBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML run config (flags override its values)")
	epochs := fs.Int("epochs", 0, "Number of training epochs")
	batchSize := fs.Int("batch", 0, "Batch size")
	lr := fs.Float64("lr", 0, "Learning rate")
	dModel := fs.Int("d-model", 0, "Model dimension")
	heads := fs.Int("heads", 0, "Number of attention heads")
	layers := fs.Int("layers", 0, "Encoder and decoder layers")
	dFF := fs.Int("d-ff", 0, "Feed-forward hidden dimension")
	dropout := fs.Float64("dropout", 0, "Dropout probability")
	seqLen := fs.Int("seq-len", 0, "Sequence length")
	datasetSize := fs.Int("dataset", 0, "Number of training sequences")
	seed := fs.Int64("seed", 0, "Seed for weights, data and shuffling")
	out := fs.String("out", "", "Checkpoint path")
	_ = fs.Parse(args)

	cfg := train.DefaultRunConfig()
	if *configPath != "" {
		loaded, err := train.LoadRunConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "epochs":
			cfg.Epochs = *epochs
		case "batch":
			cfg.Data.BatchSize = *batchSize
		case "lr":
			cfg.Optimizer.LR = float32(*lr)
		case "d-model":
			cfg.Model.DModel = *dModel
		case "heads":
			cfg.Model.NumHeads = *heads
		case "layers":
			cfg.Model.NumEncoderLayers = *layers
			cfg.Model.NumDecoderLayers = *layers
		case "d-ff":
			cfg.Model.DFF = *dFF
		case "dropout":
			cfg.Model.Dropout = float32(*dropout)
		case "seq-len":
			cfg.Data.SeqLen = *seqLen
			if cfg.Model.MaxLen < *seqLen+1 {
				cfg.Model.MaxLen = *seqLen + 1
			}
		case "dataset":
			cfg.Data.DatasetSize = *datasetSize
		case "seed":
			cfg.Model.Seed = *seed
			cfg.Data.Seed = *seed
		case "out":
			cfg.Checkpoint = *out
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Reverse - seq2seq Transformer training")
	fmt.Printf("   d_model=%d heads=%d layers=%d/%d d_ff=%d dropout=%.2f\n",
		cfg.Model.DModel, cfg.Model.NumHeads, cfg.Model.NumEncoderLayers, cfg.Model.NumDecoderLayers,
		cfg.Model.DFF, cfg.Model.Dropout)
	fmt.Printf("   dataset=%d seq_len=%d batch=%d epochs=%d optimizer=%s lr=%g\n",
		cfg.Data.DatasetSize, cfg.Data.SeqLen, cfg.Data.BatchSize, cfg.Epochs, cfg.Optimizer.Name, cfg.Optimizer.LR)

	backend := autodiff.New(cpu.New())
	model, err := nn.NewTransformer(cfg.Model, backend)
	if err != nil {
		log.Fatalf("Failed to create model: %v", err)
	}
	fmt.Printf("   Model has %d trainable parameters\n", countParameters(model))

	vocab := data.NewVocab()
	dataset, err := data.NewReverseDataset(vocab, cfg.Data.DatasetSize, cfg.Data.SeqLen, cfg.Data.Seed)
	if err != nil {
		log.Fatalf("Failed to create dataset: %v", err)
	}
	loader, err := data.NewLoader[trainBackend](dataset, cfg.Data.BatchSize, cfg.Data.Shuffle, cfg.Data.Seed)
	if err != nil {
		log.Fatalf("Failed to create loader: %v", err)
	}

	optimizer, err := train.NewOptimizer(cfg.Optimizer, model.Parameters(), backend)
	if err != nil {
		log.Fatalf("Failed to create optimizer: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	trainer := train.NewTrainer(model, optimizer, backend,
		train.WithLogger(logger),
		train.WithEpochHook(func(epoch int, loss float32) {
			fmt.Printf("Epoch %d/%d - loss: %.4f\n", epoch, cfg.Epochs, loss)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("\nTraining run %s\n", trainer.RunID())
	if err := trainer.Run(ctx, loader, cfg.Epochs); err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	metrics, err := trainer.Evaluate(loader)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	fmt.Printf("\nFinal loss: %.4f, token accuracy: %.2f%%\n", metrics.Loss, metrics.Accuracy*100)

	printSamples(model, dataset, backend, 5)

	configYAML, err := cfg.YAML()
	if err != nil {
		log.Fatalf("Failed to encode config: %v", err)
	}
	meta := map[string]string{
		serialization.MetaRunID:  trainer.RunID().String(),
		serialization.MetaConfig: configYAML,
		serialization.MetaEpoch:  strconv.Itoa(trainer.State().Epoch),
	}
	if err := serialization.Save(cfg.Checkpoint, model.StateDict(), meta); err != nil {
		log.Fatalf("Failed to save checkpoint: %v", err)
	}
	logger.Info("checkpoint saved", "path", cfg.Checkpoint, "epoch", trainer.State().Epoch)
	fmt.Printf("Checkpoint saved to %s\n", cfg.Checkpoint)
}

// printSamples decodes the first n training sequences and prints source,
// prediction and expected reversal.
func printSamples(model *nn.Transformer[trainBackend], dataset *data.ReverseDataset, backend trainBackend, n int) {
	vocab := dataset.Vocab()
	fmt.Println("\nSample predictions:")
	for i := 0; i < n && i < dataset.Len(); i++ {
		src, tgt := dataset.Item(i)
		pred, err := reverseIDs(model, src, generate.GreedySampling(), backend)
		if err != nil {
			log.Fatalf("Decoding failed: %v", err)
		}
		printPrediction(vocab.Decode(src), vocab.Decode(pred), vocab.Decode(tgt))
	}
}

func printPrediction(src, pred, want string) {
	mark := "ok"
	if pred != want {
		mark = "MISS"
	}
	fmt.Printf("   %-4s src=%s pred=%s want=%s\n", mark, src, pred, want)
}

func countParameters[B tensor.Backend](model *nn.Transformer[B]) int {
	total := 0
	for _, p := range model.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}
