// Package serialization saves and loads model checkpoints in the SafeTensors
// layout:
//
//	[8 bytes: header size N (uint64 LE)]
//	[N bytes: JSON header, keys sorted, padded with spaces to 8 bytes]
//	[tensor data: raw little-endian bytes, in header order]
//
// The header maps each tensor name to its dtype, shape and byte range, plus
// an optional "__metadata__" object of string pairs. Checkpoints written by
// this package record the run id, the YAML run config, the epoch and a
// SHA-256 of the data section there; Load verifies the checksum when present.
//
// Example usage:
//
//	meta := map[string]string{serialization.MetaRunID: runID.String()}
//	if err := serialization.Save("reverse.safetensors", model.StateDict(), meta); err != nil {
//	    log.Fatal(err)
//	}
//
//	ckpt, err := serialization.Load("reverse.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = model.LoadStateDict(ckpt.Tensors)
package serialization
