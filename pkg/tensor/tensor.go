// Package tensor implements the parameter serializer: a canonical binary
// encoding of a single dense tensor and the content hash derived from it.
package tensor

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// DType names the element type of a Tensor's raw bytes. Values are stored
// little-endian regardless of host architecture so hashes are portable.
type DType string

const (
	Float32  DType = "float32"
	Float64  DType = "float64"
	Float16  DType = "float16"  // IEEE-754 half, carried as raw uint16 bits.
	BFloat16 DType = "bfloat16" // carried as raw uint16 bits.
	Int64    DType = "int64"    // used for sparse-update index tensors.
)

// bytesPerElem returns the element width for dtype, or 0 if unknown.
func bytesPerElem(dt DType) int {
	switch dt {
	case Float32:
		return 4
	case Float64, Int64:
		return 8
	case Float16, BFloat16:
		return 2
	default:
		return 0
	}
}

// Tensor is a dense, value-typed multidimensional array of floats.
// Equality is shape+dtype+bitwise-bytes; Data is always the little-endian
// raw buffer for Dtype, row-major over Shape.
type Tensor struct {
	Shape []int
	Dtype DType
	Data  []byte
}

// NumElements returns the product of Shape (1 for a scalar, 0 if any
// dimension is zero).
func (t Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate checks that Data's length matches Shape and Dtype.
func (t Tensor) Validate() error {
	width := bytesPerElem(t.Dtype)
	if width == 0 {
		return fmt.Errorf("tensor: unknown dtype %q", t.Dtype)
	}
	want := t.NumElements() * width
	if len(t.Data) != want {
		return fmt.Errorf("tensor: dtype %s shape %v wants %d bytes, got %d", t.Dtype, t.Shape, want, len(t.Data))
	}
	return nil
}

// Canonical returns the canonical byte layout used for hashing and object
// storage: a small header (dtype name, rank, shape) followed by the raw
// little-endian element bytes. Two tensors with equal Shape/Dtype/Data
// always produce identical canonical bytes (determinism is the invariant
// the rest of the system relies on).
func (t Tensor) Canonical() []byte {
	dtype := []byte(t.Dtype)
	header := make([]byte, 0, 2+len(dtype)+4+4*len(t.Shape))
	header = binary.LittleEndian.AppendUint16(header, uint16(len(dtype)))
	header = append(header, dtype...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(t.Shape)))
	for _, d := range t.Shape {
		header = binary.LittleEndian.AppendUint32(header, uint32(d))
	}
	out := make([]byte, 0, len(header)+len(t.Data))
	out = append(out, header...)
	out = append(out, t.Data...)
	return out
}

// Hash returns the 64-hex-digit SHA-256 content hash of the tensor's
// canonical encoding.
func (t Tensor) Hash() string {
	sum := sha256.Sum256(t.Canonical())
	return hex.EncodeToString(sum[:])
}

// Equal reports bitwise equality: same shape, dtype, and bytes.
// -0.0 and +0.0 are distinct because comparison is over raw bytes, never
// through the float values themselves.
func (t Tensor) Equal(other Tensor) bool {
	if t.Dtype != other.Dtype || len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	if len(t.Data) != len(other.Data) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Float64At returns element i interpreted as a float64, widening from the
// tensor's native dtype.
func (t Tensor) Float64At(i int) float64 {
	width := bytesPerElem(t.Dtype)
	off := i * width
	switch t.Dtype {
	case Float32:
		bits := binary.LittleEndian.Uint32(t.Data[off : off+4])
		return float64(math.Float32frombits(bits))
	case Float64:
		bits := binary.LittleEndian.Uint64(t.Data[off : off+8])
		return math.Float64frombits(bits)
	case Float16:
		bits := binary.LittleEndian.Uint16(t.Data[off : off+2])
		return float16ToFloat64(bits)
	case BFloat16:
		bits := binary.LittleEndian.Uint16(t.Data[off : off+2])
		return bfloat16ToFloat64(bits)
	default:
		return 0
	}
}

// SetFloat64At writes v into element i of Data, narrowing to the tensor's
// native dtype.
func (t Tensor) SetFloat64At(i int, v float64) {
	width := bytesPerElem(t.Dtype)
	off := i * width
	switch t.Dtype {
	case Float32:
		binary.LittleEndian.PutUint32(t.Data[off:off+4], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(t.Data[off:off+8], math.Float64bits(v))
	case Float16:
		binary.LittleEndian.PutUint16(t.Data[off:off+2], float64ToFloat16(v))
	case BFloat16:
		binary.LittleEndian.PutUint16(t.Data[off:off+2], float64ToBFloat16(v))
	}
}

// Int64At returns element i of an Int64 tensor.
func (t Tensor) Int64At(i int) int64 {
	off := i * 8
	return int64(binary.LittleEndian.Uint64(t.Data[off : off+8]))
}

// SetInt64At writes v into element i of an Int64 tensor.
func (t Tensor) SetInt64At(i int, v int64) {
	off := i * 8
	binary.LittleEndian.PutUint64(t.Data[off:off+8], uint64(v))
}

// IntVector builds an Int64 tensor from a slice of indices.
func IntVector(indices []int64) Tensor {
	t := Zeros([]int{len(indices)}, Int64)
	for i, v := range indices {
		t.SetInt64At(i, v)
	}
	return t
}

// Ints reads an Int64 tensor back into a slice.
func (t Tensor) Ints() []int64 {
	out := make([]int64, t.NumElements())
	for i := range out {
		out[i] = t.Int64At(i)
	}
	return out
}

// Zeros allocates a new tensor of the given shape/dtype with zeroed data.
func Zeros(shape []int, dtype DType) Tensor {
	width := bytesPerElem(dtype)
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Dtype: dtype, Data: make([]byte, n*width)}
}

// Clone returns a deep copy of the tensor.
func (t Tensor) Clone() Tensor {
	out := Tensor{Shape: append([]int(nil), t.Shape...), Dtype: t.Dtype, Data: append([]byte(nil), t.Data...)}
	return out
}

func float16ToFloat64(bits uint16) float64 {
	sign := uint32(bits>>15) & 1
	exp := uint32(bits>>10) & 0x1f
	frac := uint32(bits) & 0x3ff
	var f32 uint32
	switch exp {
	case 0:
		if frac == 0 {
			f32 = sign << 31
		} else {
			// Subnormal half -> normalize into float32.
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			exp++
			frac &= 0x3ff
			f32 = (sign << 31) | ((exp + 112) << 23) | (frac << 13)
		}
	case 0x1f:
		f32 = (sign << 31) | (0xff << 23) | (frac << 13)
	default:
		f32 = (sign << 31) | ((exp + 112) << 23) | (frac << 13)
	}
	return float64(math.Float32frombits(f32))
}

func float64ToFloat16(v float64) uint16 {
	f32 := math.Float32bits(float32(v))
	sign := uint16(f32>>16) & 0x8000
	exp := int32((f32>>23)&0xff) - 127 + 15
	frac := f32 & 0x7fffff
	if exp <= 0 {
		return sign
	}
	if exp >= 0x1f {
		return sign | 0x7c00
	}
	return sign | uint16(exp)<<10 | uint16(frac>>13)
}

func bfloat16ToFloat64(bits uint16) float64 {
	f32 := uint32(bits) << 16
	return float64(math.Float32frombits(f32))
}

func float64ToBFloat16(v float64) uint16 {
	bits := math.Float32bits(float32(v))
	return uint16(bits >> 16)
}
