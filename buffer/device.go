package buffer

import (
	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/lightstep/commbench/common"
)

// deviceProvider hands out page-aligned anonymous mappings, locked in
// memory when the memlock limit allows, in the role of registered
// device staging memory.
type deviceProvider struct {
	limit  int
	warned bool
}

func (*deviceProvider) Kind() Kind { return Device }

func (p *deviceProvider) Allocate(size int) (*Buffer, error) {
	if err := checkSize(size, p.limit); err != nil {
		return nil, err
	}
	if size == 0 {
		return &Buffer{data: []byte{}, kind: Device}, nil
	}
	mapping, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, common.Wrap(common.ResourceError, "mmap", err)
	}
	b := &Buffer{data: mapping, kind: Device, locked: true}
	if err := unix.Mlock(mapping); err != nil {
		b.locked = false
		if !p.warned {
			glog.Warningf("device buffers are not page-locked: %v", err)
			p.warned = true
		}
	}
	return b, nil
}

func (p *deviceProvider) Fill(b *Buffer, value byte) error {
	return fill(b, value)
}

func (p *deviceProvider) Free(b *Buffer) error {
	if b.freed {
		return ErrFreed
	}
	b.freed = true
	mapping := b.data
	b.data = nil
	if len(mapping) == 0 {
		return nil
	}
	if b.locked {
		if err := unix.Munlock(mapping); err != nil {
			return common.Wrap(common.ResourceError, "munlock", err)
		}
	}
	return common.Wrap(common.ResourceError, "munmap", unix.Munmap(mapping))
}
