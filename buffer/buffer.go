// Package buffer allocates the send and receive buffers of a benchmark.
// Callers see opaque byte ranges whatever memory backs them.
package buffer

import (
	"errors"
	"fmt"

	"github.com/lightstep/commbench/common"
)

type Kind int

const (
	Host Kind = iota
	Device
)

func (k Kind) String() string {
	if k == Device {
		return "device"
	}
	return "host"
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "none", "host":
		return Host, nil
	case "device":
		return Device, nil
	}
	return Host, fmt.Errorf("unknown accelerator %q", s)
}

var ErrFreed = errors.New("buffer already freed")

type Buffer struct {
	data   []byte
	kind   Kind
	freed  bool
	locked bool
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Kind() Kind {
	return b.kind
}

// Provider is selected once at startup.
type Provider interface {
	Kind() Kind
	Allocate(size int) (*Buffer, error)
	Fill(b *Buffer, value byte) error
	Free(b *Buffer) error
}

// NewProvider returns the provider for kind. limit bounds any single
// allocation; zero means unlimited.
func NewProvider(kind Kind, limit int) Provider {
	if kind == Device {
		return &deviceProvider{limit: limit}
	}
	return &hostProvider{limit: limit}
}

func checkSize(size, limit int) error {
	if size < 0 || (limit > 0 && size > limit) {
		return common.Errorf(common.ResourceError, "allocate",
			"cannot allocate %d bytes (limit %d)", size, limit)
	}
	return nil
}

func fill(b *Buffer, value byte) error {
	if b.freed {
		return ErrFreed
	}
	for i := range b.data {
		b.data[i] = value
	}
	return nil
}

type hostProvider struct {
	limit int
}

func (*hostProvider) Kind() Kind { return Host }

func (p *hostProvider) Allocate(size int) (*Buffer, error) {
	if err := checkSize(size, p.limit); err != nil {
		return nil, err
	}
	return &Buffer{data: make([]byte, size), kind: Host}, nil
}

func (p *hostProvider) Fill(b *Buffer, value byte) error {
	return fill(b, value)
}

func (p *hostProvider) Free(b *Buffer) error {
	if b.freed {
		return ErrFreed
	}
	b.freed = true
	b.data = nil
	return nil
}
