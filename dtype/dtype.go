// Package dtype encodes reduction elements in opaque byte buffers.
package dtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Type reads and writes little-endian elements of one numeric kind.
type Type interface {
	Name() string
	Size() int
	Get(buf []byte, i int) float64
	Set(buf []byte, i int, v float64)

	// Epsilon is the relative rounding step and Max the largest
	// finite value.
	Epsilon() float64
	Max() float64
}

var (
	Float32 Type = float32Type{}
	Float64 Type = float64Type{}
	Float16 Type = float16Type{}
)

func Parse(name string) (Type, error) {
	switch name {
	case "", "float", "float32":
		return Float32, nil
	case "double", "float64":
		return Float64, nil
	case "half", "float16":
		return Float16, nil
	}
	return nil, fmt.Errorf("unknown datatype %q", name)
}

// Len returns the number of whole elements in buf.
func Len(t Type, buf []byte) int {
	return len(buf) / t.Size()
}

// Sum adds n elements of src into dst.
func Sum(t Type, dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		t.Set(dst, i, t.Get(dst, i)+t.Get(src, i))
	}
}

// Fill sets the first n elements of buf to v.
func Fill(t Type, buf []byte, n int, v float64) {
	for i := 0; i < n; i++ {
		t.Set(buf, i, v)
	}
}

type float32Type struct{}

func (float32Type) Name() string     { return "float" }
func (float32Type) Size() int        { return 4 }
func (float32Type) Epsilon() float64 { return 0x1p-23 }
func (float32Type) Max() float64     { return math.MaxFloat32 }

func (float32Type) Get(buf []byte, i int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
}

func (float32Type) Set(buf []byte, i int, v float64) {
	binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
}

type float64Type struct{}

func (float64Type) Name() string     { return "double" }
func (float64Type) Size() int        { return 8 }
func (float64Type) Epsilon() float64 { return 0x1p-52 }
func (float64Type) Max() float64     { return math.MaxFloat64 }

func (float64Type) Get(buf []byte, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
}

func (float64Type) Set(buf []byte, i int, v float64) {
	binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
}

type float16Type struct{}

func (float16Type) Name() string     { return "half" }
func (float16Type) Size() int        { return 2 }
func (float16Type) Epsilon() float64 { return 0x1p-10 }
func (float16Type) Max() float64     { return 65504 }

func (float16Type) Get(buf []byte, i int) float64 {
	return float64(float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32())
}

func (float16Type) Set(buf []byte, i int, v float64) {
	binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(float32(v)).Bits())
}

// EncodeFloat64s packs vals as doubles.
func EncodeFloat64s(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		Float64.Set(buf, i, v)
	}
	return buf
}

func DecodeFloat64s(buf []byte) []float64 {
	vals := make([]float64, Len(Float64, buf))
	for i := range vals {
		vals[i] = Float64.Get(buf, i)
	}
	return vals
}
