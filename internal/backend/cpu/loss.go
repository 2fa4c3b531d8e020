package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// CrossEntropy computes mean softmax cross-entropy of logits [N, C]
// against int32 class targets [N]. Uses log-sum-exp for stability.
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	n, c := checkCrossEntropy(logits, targets)

	l, t := logits.AsFloat32(), targets.AsInt32()
	var total float64
	for i := 0; i < n; i++ {
		row := l[i*c : (i+1)*c]
		total += logSumExp(row) - float64(row[t[i]])
	}

	result := tensor.MustRaw(tensor.Shape{}, tensor.Float32, cpu.device)
	result.AsFloat32()[0] = float32(total / float64(n))
	return result
}

func checkCrossEntropy(logits, targets *tensor.RawTensor) (n, c int) {
	ls, ts := logits.Shape(), targets.Shape()
	if len(ls) != 2 {
		panic(fmt.Sprintf("CrossEntropy: logits must be 2D [N, C], got %v", ls))
	}
	if len(ts) != 1 || ts[0] != ls[0] {
		panic(fmt.Sprintf("CrossEntropy: targets must be [%d], got %v", ls[0], ts))
	}
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("CrossEntropy: targets must be int32, got %s", targets.DType()))
	}
	requireFloat32("CrossEntropy", logits)

	n, c = ls[0], ls[1]
	for i, t := range targets.AsInt32() {
		if t < 0 || int(t) >= c {
			panic(fmt.Sprintf("CrossEntropy: target %d at row %d out of range [0, %d)", t, i, c))
		}
	}
	return n, c
}

func logSumExp(row []float32) float64 {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return float64(maxVal) + math.Log(sum)
}
