package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// BatchMatMul multiplies the trailing two dimensions of 3D or 4D tensors.
//
// Example:
//
//	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2)) // [B, H, Lq, Lk]
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.BatchMatMul(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// One dimension may be -1 and is inferred from the others.
//
// Example:
//
//	flat := logits.Reshape(-1, vocab) // [B*L, V]
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	shape := inferShape(t.Shape(), newShape)
	return New[T, B](t.backend.Reshape(t.raw, shape), t.backend)
}

// Transpose permutes dimensions. With no axes it reverses them.
//
// Example:
//
//	t := tensor.Zeros[float32](Shape{2, 3, 4}, backend)
//	transposed := t.Transpose(2, 0, 1) // Shape: [4, 2, 3]
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Transpose(t.raw, axes...), t.backend)
}

// T is a shortcut for 2D transpose. Panics if the tensor is not 2D.
func (t *Tensor[T, B]) T() *Tensor[T, B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return t.Transpose(1, 0)
}

// MulScalar multiplies every element by s.
func (t *Tensor[T, B]) MulScalar(s T) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, s), t.backend)
}

// AddScalar adds s to every element.
func (t *Tensor[T, B]) AddScalar(s T) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, s), t.backend)
}

// Sqrt computes the element-wise square root.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] {
	return New[T, B](t.backend.Sqrt(t.raw), t.backend)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// Softmax normalizes along dim (only the last dimension is supported).
func (t *Tensor[T, B]) Softmax(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Softmax(t.raw, dim), t.backend)
}

// SumDim sums along dim.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along dim.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Argmax returns int32 indices of the maximum along dim (dim removed).
func (t *Tensor[T, B]) Argmax(dim int) *Tensor[int32, B] {
	return New[int32, B](t.backend.Argmax(t.raw, dim), t.backend)
}

// Embedding gathers rows of t (a [V, D] table) for each index.
// Rows selected by paddingIdx get no gradient; pass -1 for none.
func (t *Tensor[T, B]) Embedding(indices *Tensor[int32, B], paddingIdx int) *Tensor[T, B] {
	return New[T, B](t.backend.Embedding(t.raw, indices.raw, paddingIdx), t.backend)
}

// Where returns x where condition is true and y elsewhere, broadcasting all three.
//
// Example:
//
//	fill := tensor.Full[float32](Shape{1}, -1e9, backend)
//	masked := tensor.Where(mask, fill, scores)
func Where[T DType, B Backend](condition *Tensor[bool, B], x, y *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](x.backend.Where(condition.raw, x.raw, y.raw), x.backend)
}

func inferShape(old Shape, dims []int) Shape {
	shape := make(Shape, len(dims))
	inferred := -1
	known := 1
	for i, d := range dims {
		switch {
		case d == -1:
			if inferred >= 0 {
				panic(fmt.Sprintf("reshape: more than one inferred dimension in %v", dims))
			}
			inferred = i
		case d <= 0:
			panic(fmt.Sprintf("reshape: invalid dimension %d in %v", d, dims))
		default:
			known *= d
		}
		shape[i] = d
	}
	if inferred >= 0 {
		total := old.NumElements()
		if total%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %v from %v", dims, old))
		}
		shape[inferred] = total / known
	}
	return shape
}
