package cpu

// flatIndex maps a flat output index onto a source tensor.
// outStrides are the row-major strides of the output shape and inStrides the
// broadcast-adjusted strides of the source (zero along broadcast dims).
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	flat := 0
	for i, s := range outStrides {
		coord := outIdx / s
		outIdx %= s
		flat += coord * inStrides[i]
	}
	return flat
}
