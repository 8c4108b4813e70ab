package update

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/r-three/git-theta-go/pkg/tensor"
)

// EncodeRecord serializes a Record to the single blob stored as one
// content-addressed object: a field count followed by, for each field
// (sorted by key for determinism), its key and its tensor's Canonical()
// bytes.
func EncodeRecord(rec Record) []byte {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(k)))
		buf = append(buf, k...)
		canon := rec[k].Canonical()
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(canon)))
		buf = append(buf, canon...)
	}
	return buf
}

// DecodeRecord is EncodeRecord's inverse.
func DecodeRecord(data []byte) (Record, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("update: record blob too short")
	}
	n := binary.LittleEndian.Uint32(data)
	off := 4
	rec := make(Record, n)
	for i := uint32(0); i < n; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("update: truncated record blob reading key length")
		}
		keyLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+keyLen > len(data) {
			return nil, fmt.Errorf("update: truncated record blob reading key")
		}
		key := string(data[off : off+keyLen])
		off += keyLen
		if off+8 > len(data) {
			return nil, fmt.Errorf("update: truncated record blob reading tensor length")
		}
		tensorLen := int(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		if off+tensorLen > len(data) {
			return nil, fmt.Errorf("update: truncated record blob reading tensor bytes")
		}
		t, err := decodeCanonicalTensor(data[off : off+tensorLen])
		if err != nil {
			return nil, fmt.Errorf("update: decoding field %q: %w", key, err)
		}
		off += tensorLen
		rec[key] = t
	}
	return rec, nil
}

// decodeCanonicalTensor parses the header+data layout written by
// tensor.Tensor.Canonical.
func decodeCanonicalTensor(data []byte) (tensor.Tensor, error) {
	if len(data) < 2 {
		return tensor.Tensor{}, fmt.Errorf("tensor blob too short")
	}
	dtypeLen := int(binary.LittleEndian.Uint16(data))
	off := 2
	if off+dtypeLen > len(data) {
		return tensor.Tensor{}, fmt.Errorf("truncated dtype")
	}
	dtype := tensor.DType(data[off : off+dtypeLen])
	off += dtypeLen
	if off+4 > len(data) {
		return tensor.Tensor{}, fmt.Errorf("truncated rank")
	}
	rank := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	shape := make([]int, rank)
	for i := range shape {
		if off+4 > len(data) {
			return tensor.Tensor{}, fmt.Errorf("truncated shape")
		}
		shape[i] = int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	t := tensor.Tensor{Shape: shape, Dtype: dtype, Data: append([]byte(nil), data[off:]...)}
	if err := t.Validate(); err != nil {
		return tensor.Tensor{}, err
	}
	return t, nil
}
