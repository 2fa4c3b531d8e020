// Package generate decodes output sequences from a trained seq2seq model.
//
// The source is encoded once; the decoder then runs autoregressively from
// <bos>, choosing each next token by argmax or by temperature sampling.
package generate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SamplingConfig configures how the next token is chosen from logits.
type SamplingConfig struct {
	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// TopK limits sampling to the K most likely tokens. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) keeps the smallest set of tokens whose
	// cumulative probability exceeds P. 0 or 1 = disabled.
	TopP float32

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// GreedySampling returns the argmax configuration.
func GreedySampling() SamplingConfig {
	return SamplingConfig{Temperature: 0, TopP: 1, Seed: -1}
}

// Validate rejects negative temperatures and out-of-range filters.
func (c SamplingConfig) Validate() error {
	switch {
	case c.Temperature < 0:
		return fmt.Errorf("sampling: temperature must be >= 0, got %v", c.Temperature)
	case c.TopK < 0:
		return fmt.Errorf("sampling: top_k must be >= 0, got %d", c.TopK)
	case c.TopP < 0 || c.TopP > 1:
		return fmt.Errorf("sampling: top_p must be in [0, 1], got %v", c.TopP)
	}
	return nil
}

// Sampler picks token ids from logits.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	seed := config.Seed
	if seed < 0 {
		seed = rand.Int63() //nolint:gosec // caller asked for a random seed
	}
	return &Sampler{
		config: config,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec // G404: ML uses math/rand intentionally
	}
}

// Sample returns the next token id from one row of logits.
//
// Steps: temperature scaling, Top-K, Top-P, then a draw from the softmax.
// With temperature 0 it returns the argmax and consumes no randomness.
func (s *Sampler) Sample(logits []float32) int32 {
	if s.config.Temperature == 0 {
		return argmax(logits)
	}

	scaled := make([]float32, len(logits))
	for i, v := range logits {
		scaled[i] = v / s.config.Temperature
	}

	if s.config.TopK > 0 && s.config.TopK < len(scaled) {
		topKFilter(scaled, s.config.TopK)
	}
	if s.config.TopP > 0 && s.config.TopP < 1 {
		topPFilter(scaled, s.config.TopP)
	}

	return s.multinomial(softmax(scaled))
}

// argmax returns the index of the maximum value; ties go to the lowest index.
func argmax(logits []float32) int32 {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return int32(maxIdx) //nolint:gosec // vocab size is bounded by model architecture
}

// topKFilter sets every logit below the k-th largest to -inf.
func topKFilter(logits []float32, k int) {
	sorted := append([]float32{}, logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[k-1]

	for i := range logits {
		if logits[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
}

// topPFilter keeps the most likely tokens up to cumulative probability p.
// The most likely token always survives.
func topPFilter(logits []float32, p float32) {
	probs := softmax(logits)
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return probs[order[i]] > probs[order[j]] })

	keep := make([]bool, len(probs))
	var cum float32
	for _, idx := range order {
		keep[idx] = true
		cum += probs[idx]
		if cum >= p {
			break
		}
	}

	for i := range logits {
		if !keep[i] {
			logits[i] = float32(math.Inf(-1))
		}
	}
}

// multinomial draws an index from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int32 {
	r := s.rng.Float32()

	var cum float32
	for i, p := range probs {
		cum += p
		if r < cum {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}

	// Rounding left r above the total mass: return the last possible token.
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}
	return int32(len(probs) - 1) //nolint:gosec // vocab size is bounded by model architecture
}

// softmax converts logits to probabilities. -inf entries get probability 0.
func softmax(logits []float32) []float32 {
	maxVal := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxVal {
			maxVal = v
		}
	}

	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}

	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
