// Package layout describes strided vector views over flat byte buffers.
package layout

import (
	"errors"
	"fmt"

	"github.com/lightstep/commbench/common"
)

var (
	ErrInvalidLayout = errors.New("invalid layout")
	ErrReleased      = errors.New("layout already released")
)

// Layout selects Count blocks of BlockLength bytes, Stride bytes apart.
type Layout struct {
	BlockLength int
	Stride      int
	Count       int

	released bool
}

// CheckParams validates block and stride against the configured maxima.
func CheckParams(block, stride, maxBlock, maxStride int) error {
	switch {
	case block < 1:
		return invalid("block length %d < 1", block)
	case block > stride:
		return invalid("block length %d > stride %d", block, stride)
	case block > maxBlock:
		return invalid("block length %d > maximum %d", block, maxBlock)
	case stride > maxStride:
		return invalid("stride %d > maximum %d", stride, maxStride)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return &common.Error{
		Kind: common.ConfigurationError,
		Op:   "layout",
		Err:  fmt.Errorf("%w: %s", ErrInvalidLayout, fmt.Sprintf(format, args...)),
	}
}

// Build covers size bytes with whole blocks. A trailing partial block
// is not part of the view.
func Build(size, block, stride int) (*Layout, error) {
	if size < 0 || block < 1 || block > stride {
		return nil, invalid("size %d block %d stride %d", size, block, stride)
	}
	return &Layout{BlockLength: block, Stride: stride, Count: size / block}, nil
}

// Size is the number of bytes the view transfers.
func (l *Layout) Size() int {
	return l.Count * l.BlockLength
}

// Extent is the span of the flat buffer touched by the view.
func (l *Layout) Extent() int {
	if l.Count == 0 {
		return 0
	}
	return (l.Count-1)*l.Stride + l.BlockLength
}

// Pack gathers the view of buf into a new contiguous slice.
func (l *Layout) Pack(buf []byte) ([]byte, error) {
	if err := l.check(buf); err != nil {
		return nil, err
	}
	out := make([]byte, 0, l.Size())
	for i := 0; i < l.Count; i++ {
		off := i * l.Stride
		out = append(out, buf[off:off+l.BlockLength]...)
	}
	return out, nil
}

// Unpack scatters a contiguous payload into the view of buf.
func (l *Layout) Unpack(buf, payload []byte) error {
	if err := l.check(buf); err != nil {
		return err
	}
	if len(payload) != l.Size() {
		return fmt.Errorf("layout: payload of %d bytes for a %d byte view", len(payload), l.Size())
	}
	for i := 0; i < l.Count; i++ {
		copy(buf[i*l.Stride:], payload[i*l.BlockLength:(i+1)*l.BlockLength])
	}
	return nil
}

func (l *Layout) check(buf []byte) error {
	if l.released {
		return ErrReleased
	}
	if len(buf) < l.Extent() {
		return fmt.Errorf("layout: buffer of %d bytes, extent %d", len(buf), l.Extent())
	}
	return nil
}

// Free releases the descriptor. A layout is never reused across sizes.
func (l *Layout) Free() error {
	if l.released {
		return ErrReleased
	}
	l.released = true
	return nil
}

func (l *Layout) String() string {
	return fmt.Sprintf("vector(count=%d, block=%d, stride=%d)", l.Count, l.BlockLength, l.Stride)
}
