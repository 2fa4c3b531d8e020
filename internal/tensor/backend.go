package tensor

// Backend defines the operations a compute backend must provide.
// Every method returns a newly allocated RawTensor and leaves its inputs
// untouched. Shape violations panic.
//
// Implementations:
//   - cpu.CPUBackend: pure Go reference backend
//   - autodiff.AutodiffBackend: decorator recording ops on a gradient tape
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies two 2D matrices: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul performs batched matrix multiplication for 3D/4D tensors.
	// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
	// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Math and activation
	Sqrt(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor

	// Softmax normalizes along dim. Backends only need to support the last dim.
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Where selects x where condition is true and y elsewhere.
	// All three inputs broadcast to a common shape.
	Where(condition, x, y *RawTensor) *RawTensor

	// Embedding gathers rows of weight [V, D] by int32 indices of any shape,
	// producing [...indices, D]. Indices outside [0, V) panic.
	// Rows equal to paddingIdx receive no gradient; -1 disables this.
	Embedding(weight, indices *RawTensor, paddingIdx int) *RawTensor

	// CrossEntropy returns the mean softmax cross-entropy of logits [N, C]
	// against int32 targets [N] as a scalar.
	CrossEntropy(logits, targets *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
