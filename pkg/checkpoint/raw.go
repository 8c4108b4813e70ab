package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// RawAdapter is the dependency-free reference checkpoint format: a count
// of parameters followed, per parameter, by a length-prefixed name and
// the tensor's own Canonical() encoding. It exists so the clean/smudge
// pipelines and their tests have a concrete adapter that needs nothing
// beyond this module — framework adapters (safetensors, and anything
// pytorch/flax-shaped) are plugins over the same Adapter interface.
type RawAdapter struct{}

func NewRawAdapter() RawAdapter { return RawAdapter{} }

func (RawAdapter) Name() types.CheckpointType { return types.CheckpointRaw }

func (RawAdapter) Decode(r io.Reader) (Params, error) {
	br := bufio.NewReader(r)
	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("checkpoint/raw: reading param count: %w", err)
	}
	params := make(Params, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("checkpoint/raw: reading name %d: %w", i, err)
		}
		var dtypeLen uint16
		if err := binary.Read(br, binary.LittleEndian, &dtypeLen); err != nil {
			return nil, err
		}
		dtypeBytes := make([]byte, dtypeLen)
		if _, err := io.ReadFull(br, dtypeBytes); err != nil {
			return nil, err
		}
		var rank uint32
		if err := binary.Read(br, binary.LittleEndian, &rank); err != nil {
			return nil, err
		}
		shape := make([]int, rank)
		for d := range shape {
			var dim uint32
			if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
				return nil, err
			}
			shape[d] = int(dim)
		}
		var dataLen uint64
		if err := binary.Read(br, binary.LittleEndian, &dataLen); err != nil {
			return nil, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("checkpoint/raw: reading data for %q: %w", name, err)
		}
		t := tensor.Tensor{Shape: shape, Dtype: tensor.DType(dtypeBytes), Data: data}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("checkpoint/raw: %q: %w", name, err)
		}
		params[name] = t
	}
	return params, nil
}

func (RawAdapter) Encode(w io.Writer, params Params) error {
	bw := bufio.NewWriter(w)
	names := sortedNames(params)
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		t := params[name]
		if err := writeString(bw, name); err != nil {
			return err
		}
		dtype := []byte(t.Dtype)
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(dtype))); err != nil {
			return err
		}
		if _, err := bw.Write(dtype); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
			return err
		}
		for _, d := range t.Shape {
			if err := binary.Write(bw, binary.LittleEndian, uint32(d)); err != nil {
				return err
			}
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(t.Data))); err != nil {
			return err
		}
		if _, err := bw.Write(t.Data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func sortedNames(params Params) []string {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
