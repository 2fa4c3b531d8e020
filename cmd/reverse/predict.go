package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/born-ml/seq2seq/internal/backend/cpu"
	"github.com/born-ml/seq2seq/internal/data"
	"github.com/born-ml/seq2seq/internal/nn"
	"github.com/born-ml/seq2seq/internal/serialization"
	"github.com/born-ml/seq2seq/internal/train"
)

func runPredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	ckptPath := fs.String("ckpt", "reverse.safetensors", "Checkpoint written by 'reverse train'")
	input := fs.String("input", "", "Lowercase letters to reverse")
	sampling := addSamplingFlags(fs)
	_ = fs.Parse(args)

	if *input == "" {
		log.Fatalf("-input is required")
	}
	samplingCfg, err := sampling.config()
	if err != nil {
		log.Fatalf("Invalid sampling flags: %v", err)
	}

	ckpt, err := serialization.Load(*ckptPath)
	if err != nil {
		log.Fatalf("Failed to load checkpoint: %v", err)
	}
	cfg, err := train.ParseRunConfig([]byte(ckpt.Metadata[serialization.MetaConfig]))
	if err != nil {
		log.Fatalf("Checkpoint has no usable config: %v", err)
	}

	backend := cpu.New()
	model, err := nn.NewTransformer(cfg.Model, backend)
	if err != nil {
		log.Fatalf("Failed to create model: %v", err)
	}
	if err := model.LoadStateDict(ckpt.Tensors); err != nil {
		log.Fatalf("Failed to load weights: %v", err)
	}

	vocab := data.NewVocab()
	src, err := vocab.Encode(*input)
	if err != nil {
		log.Fatalf("Invalid input: %v", err)
	}
	if len(src)+1 > cfg.Model.MaxLen {
		log.Fatalf("Input of %d letters exceeds the model limit of %d", len(src), cfg.Model.MaxLen-1)
	}

	pred, err := reverseIDs(model, src, samplingCfg, backend)
	if err != nil {
		log.Fatalf("Decoding failed: %v", err)
	}

	fmt.Printf("Run %s, epoch %s\n", ckpt.Metadata[serialization.MetaRunID], ckpt.Metadata[serialization.MetaEpoch])
	printPrediction(*input, vocab.Decode(pred), vocab.Decode(data.Target(src)))
}
