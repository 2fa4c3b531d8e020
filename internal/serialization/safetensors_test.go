package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/seq2seq/internal/tensor"
)

func floatTensor(t *testing.T, shape tensor.Shape, values []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func sampleState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	ids, err := tensor.NewRaw(tensor.Shape{3}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(ids.AsInt32(), []int32{1, -2, 3})

	return map[string]*tensor.RawTensor{
		"encoder.0.ffn.linear1.weight": floatTensor(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}),
		"encoder.0.ffn.linear1.bias":   floatTensor(t, tensor.Shape{3}, []float32{0.1, 0.2, 0.3}),
		"ids":                          ids,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.safetensors")
	state := sampleState(t)
	meta := map[string]string{MetaRunID: "abc", MetaEpoch: "3", MetaConfig: "epochs: 3\n"}

	require.NoError(t, Save(path, state, meta))

	ckpt, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"encoder.0.ffn.linear1.bias", "encoder.0.ffn.linear1.weight", "ids"}, ckpt.Names())
	for name, want := range state {
		got, err := ckpt.Tensor(name)
		require.NoError(t, err)
		assert.Equal(t, want.Shape(), got.Shape(), name)
		assert.Equal(t, want.DType(), got.DType(), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}

	assert.Equal(t, "abc", ckpt.Metadata[MetaRunID])
	assert.Equal(t, "3", ckpt.Metadata[MetaEpoch])
	assert.Equal(t, "epochs: 3\n", ckpt.Metadata[MetaConfig])
	assert.Equal(t, "pt", ckpt.Metadata[MetaFormat])
	assert.Len(t, ckpt.Metadata[MetaChecksum], 64)

	_, err = ckpt.Tensor("missing")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestWriteLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), nil))

	raw := buf.Bytes()
	size := binary.LittleEndian.Uint64(raw[:8])
	assert.Zero(t, size%8, "header must be padded to 8 bytes")

	header := raw[8 : 8+size]
	var entries map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(header, &entries))

	// Keys appear in sorted order in the encoded header.
	text := string(header)
	bias := strings.Index(text, `"encoder.0.ffn.linear1.bias"`)
	weight := strings.Index(text, `"encoder.0.ffn.linear1.weight"`)
	ids := strings.Index(text, `"ids"`)
	assert.True(t, bias < weight && weight < ids, "header keys not sorted: %s", text)

	var h SafeTensorHeader
	require.NoError(t, json.Unmarshal(entries["encoder.0.ffn.linear1.bias"], &h))
	assert.Equal(t, "F32", h.DType)
	assert.Equal(t, []int64{3}, h.Shape)
	assert.Equal(t, [2]int64{0, 12}, h.DataOffsets)

	// 12 + 24 + 12 bytes of data follow the header.
	assert.Len(t, raw, 8+int(size)+48)
}

func TestReadDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), nil))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, err := Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func writeHeader(t *testing.T, header map[string]any, data []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(data)
	return buf.Bytes()
}

func TestReadRejectsMalformedFiles(t *testing.T) {
	tests := []struct {
		name string
		file []byte
		want error
	}{
		{
			name: "truncated size",
			file: []byte{1, 2},
			want: ErrInvalidHeader,
		},
		{
			name: "header too large",
			file: binary.LittleEndian.AppendUint64(nil, MaxHeaderSize+1),
			want: ErrHeaderTooLarge,
		},
		{
			name: "bad json",
			file: append(binary.LittleEndian.AppendUint64(nil, 3), []byte("{x}")...),
			want: ErrInvalidHeader,
		},
		{
			name: "out of bounds",
			file: writeHeader(t, map[string]any{
				"w": SafeTensorHeader{DType: "F32", Shape: []int64{4}, DataOffsets: [2]int64{0, 16}},
			}, make([]byte, 8)),
			want: ErrOutOfBounds,
		},
		{
			name: "overlap",
			file: writeHeader(t, map[string]any{
				"a": SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{0, 8}},
				"b": SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{4, 12}},
			}, make([]byte, 12)),
			want: ErrOffsetOverlap,
		},
		{
			name: "size does not match shape",
			file: writeHeader(t, map[string]any{
				"w": SafeTensorHeader{DType: "F32", Shape: []int64{3}, DataOffsets: [2]int64{0, 8}},
			}, make([]byte, 8)),
			want: ErrInvalidHeader,
		},
		{
			name: "unsupported dtype",
			file: writeHeader(t, map[string]any{
				"w": SafeTensorHeader{DType: "F16", Shape: []int64{4}, DataOffsets: [2]int64{0, 8}},
			}, make([]byte, 8)),
			want: ErrUnsupportedDType,
		},
		{
			name: "path traversal name",
			file: writeHeader(t, map[string]any{
				"../w": SafeTensorHeader{DType: "F32", Shape: []int64{1}, DataOffsets: [2]int64{0, 4}},
			}, make([]byte, 4)),
			want: ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.file))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteRejectsInvalidNames(t *testing.T) {
	state := map[string]*tensor.RawTensor{
		"a/b": floatTensor(t, tensor.Shape{1}, []float32{1}),
	}
	err := Write(&bytes.Buffer{}, state, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.safetensors"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
