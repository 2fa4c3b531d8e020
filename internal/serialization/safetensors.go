package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/seq2seq/internal/tensor"
)

// Metadata keys written by the training CLI.
const (
	MetaRunID    = "run_id"
	MetaConfig   = "config"
	MetaEpoch    = "epoch"
	MetaChecksum = "checksum"
	MetaFormat   = "format"
)

const metadataKey = "__metadata__"

// SafeTensorHeader describes one tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Checkpoint is a loaded SafeTensors file.
type Checkpoint struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
}

// Tensor returns the named tensor or ErrTensorNotFound.
func (c *Checkpoint) Tensor(name string) (*tensor.RawTensor, error) {
	raw, ok := c.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return raw, nil
}

// Names returns the tensor names in sorted order.
func (c *Checkpoint) Names() []string {
	names := make([]string, 0, len(c.Tensors))
	for name := range c.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes tensors and metadata to path. A SHA-256 of the data section is
// added to the metadata under MetaChecksum.
func Save(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: checkpoint path comes from the user
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close checkpoint: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := Write(w, tensors, metadata); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Write encodes tensors and metadata to w in SafeTensors layout.
// Tensors are laid out in alphabetical order by name.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		raw := tensors[name]
		dtype, err := dtypeToSafeTensors(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}

		start := int64(data.Len())
		data.Write(raw.Data())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaChecksum] = ComputeChecksum(data.Bytes())
	if _, ok := meta[MetaFormat]; !ok {
		meta[MetaFormat] = "pt"
	}
	header[metadataKey] = meta

	// encoding/json sorts map keys.
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Checkpoint, error) {
	//nolint:gosec // G304: checkpoint path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer file.Close()

	ckpt, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ckpt, nil
}

// Read decodes a SafeTensors stream. Tensor names, dtypes, shapes and byte
// ranges are validated before any tensor is built.
func Read(r io.Reader) (*Checkpoint, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: failed to read header size: %w", ErrInvalidHeader, err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrInvalidHeader, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	ckpt := &Checkpoint{
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
		Metadata: make(map[string]string),
	}
	if rawMeta, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(rawMeta, &ckpt.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrInvalidHeader, err)
		}
		delete(entries, metadataKey)
	}

	headers := make(map[string]SafeTensorHeader, len(entries))
	metas := make([]TensorMeta, 0, len(entries))
	for name, rawEntry := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(rawEntry, &h); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %w", ErrInvalidHeader, name, err)
		}
		headers[name] = h
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: h.DataOffsets[0],
			Size:   h.DataOffsets[1] - h.DataOffsets[0],
		})
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, err
	}
	if sum, ok := ckpt.Metadata[MetaChecksum]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, err
		}
	}

	for name, h := range headers {
		raw, err := buildTensor(name, h, data)
		if err != nil {
			return nil, err
		}
		ckpt.Tensors[name] = raw
	}
	return ckpt, nil
}

func buildTensor(name string, h SafeTensorHeader, data []byte) (*tensor.RawTensor, error) {
	dtype, err := dtypeFromSafeTensors(h.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	shape := make(tensor.Shape, len(h.Shape))
	for i, dim := range h.Shape {
		if dim < 0 {
			return nil, fmt.Errorf("%w: tensor %q has negative dimension %d", ErrInvalidHeader, name, dim)
		}
		shape[i] = int(dim)
	}

	size := h.DataOffsets[1] - h.DataOffsets[0]
	if want := int64(shape.NumElements() * dtype.Size()); size != want {
		return nil, fmt.Errorf("%w: tensor %q spans %d bytes, shape %v %s needs %d",
			ErrInvalidHeader, name, size, shape, dtype, want)
	}

	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	copy(raw.Data(), data[h.DataOffsets[0]:h.DataOffsets[1]])
	return raw, nil
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

func dtypeFromSafeTensors(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "I32":
		return tensor.Int32, nil
	case "BOOL":
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, s)
	}
}
