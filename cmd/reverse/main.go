// Package main provides the reverse CLI: it trains a Transformer to reverse
// letter sequences and decodes with a saved checkpoint.
package main

import (
	"fmt"
	"os"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "train":
		runTrain(os.Args[2:])
	case "predict":
		runPredict(os.Args[2:])
	case "version":
		fmt.Printf("reverse %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("reverse - seq2seq Transformer for character reversal")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  train      Train a model and save a checkpoint")
	fmt.Println("  predict    Reverse a string with a trained checkpoint")
	fmt.Println("  version    Show version")
	fmt.Println("")
	fmt.Println("Run 'reverse <command> -h' for command flags.")
}
