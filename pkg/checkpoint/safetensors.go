package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// SafetensorsAdapter reads/writes the safetensors layout: an 8-byte
// little-endian header length, that many bytes of a JSON header mapping
// tensor name to {dtype, shape, data_offsets}, then the raw tensor data
// buffer referenced by those offsets. An optional "__metadata__" header
// entry (a plain string map) is ignored on decode and omitted on encode.
type SafetensorsAdapter struct{}

func NewSafetensorsAdapter() SafetensorsAdapter { return SafetensorsAdapter{} }

func (SafetensorsAdapter) Name() types.CheckpointType { return types.CheckpointSafetensors }

type safetensorsEntry struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

var safetensorsDtype = map[string]tensor.DType{
	"F32": tensor.Float32, "F64": tensor.Float64,
	"F16": tensor.Float16, "BF16": tensor.BFloat16,
	"I64": tensor.Int64,
}

var dtypeSafetensors = func() map[tensor.DType]string {
	m := make(map[tensor.DType]string, len(safetensorsDtype))
	for k, v := range safetensorsDtype {
		m[v] = k
	}
	return m
}()

func (SafetensorsAdapter) Decode(r io.Reader) (Params, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("checkpoint/safetensors: reading header length: %w", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("checkpoint/safetensors: reading header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("checkpoint/safetensors: parsing header: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("checkpoint/safetensors: reading data block: %w", err)
	}

	params := make(Params, len(raw))
	for name, rawEntry := range raw {
		if name == "__metadata__" {
			continue
		}
		var entry safetensorsEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			return nil, fmt.Errorf("checkpoint/safetensors: parsing entry %q: %w", name, err)
		}
		dtype, ok := safetensorsDtype[entry.Dtype]
		if !ok {
			return nil, fmt.Errorf("checkpoint/safetensors: unsupported dtype %q for %q", entry.Dtype, name)
		}
		start, end := entry.DataOffsets[0], entry.DataOffsets[1]
		if start < 0 || end > len(body) || start > end {
			return nil, fmt.Errorf("checkpoint/safetensors: invalid data offsets %v for %q", entry.DataOffsets, name)
		}
		t := tensor.Tensor{Shape: entry.Shape, Dtype: dtype, Data: append([]byte(nil), body[start:end]...)}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("checkpoint/safetensors: %q: %w", name, err)
		}
		params[name] = t
	}
	return params, nil
}

func (SafetensorsAdapter) Encode(w io.Writer, params Params) error {
	names := sortedNames(params)
	header := make(map[string]safetensorsEntry, len(names))
	var body bytes.Buffer
	offset := 0
	for _, name := range names {
		t := params[name]
		dtype, ok := dtypeSafetensors[t.Dtype]
		if !ok {
			return fmt.Errorf("checkpoint/safetensors: unsupported dtype %q for %q", t.Dtype, name)
		}
		start := offset
		body.Write(t.Data)
		offset += len(t.Data)
		header[name] = safetensorsEntry{Dtype: dtype, Shape: t.Shape, DataOffsets: [2]int{start, offset}}
	}
	headerBytes, err := marshalHeaderSorted(header, names)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

// marshalHeaderSorted renders the header with the names in `order`
// sorted alphabetically, whatever order they are passed in. The
// reference format has no ordering requirement of its own; this just
// keeps encoding deterministic and easy to diff by hand.
func marshalHeaderSorted(header map[string]safetensorsEntry, order []string) ([]byte, error) {
	sorted := append([]string(nil), order...)
	sort.Strings(sorted)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(header[name])
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
