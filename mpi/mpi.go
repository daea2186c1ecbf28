// Package mpi is the message-passing substrate the benchmarks drive: a
// rank/size world with non-blocking point-to-point operations, a
// non-blocking reduce-scatter and a few blocking collectives.
//
// The collective algorithms are deliberately simple. They are the
// system under test, not part of the measurement logic.
package mpi

import (
	"errors"

	"github.com/lightstep/commbench/dtype"
)

var (
	ErrAborted     = errors.New("mpi: world aborted")
	ErrFinalized   = errors.New("mpi: communicator finalized")
	ErrInvalidRank = errors.New("mpi: invalid rank")
)

// Request tracks one non-blocking operation.
type Request interface {
	// Wait blocks until the operation completes.
	Wait() error
	// Test reports completion without blocking.
	Test() (bool, error)
}

type Op int

const (
	OpSum Op = iota
	OpMin
	OpMax
)

func (op Op) apply(a, b float64) float64 {
	switch op {
	case OpMin:
		if b < a {
			return b
		}
		return a
	case OpMax:
		if b > a {
			return b
		}
		return a
	}
	return a + b
}

// Datatype maps a flat buffer to the bytes that travel on the wire.
type Datatype interface {
	Size() int
	Pack(buf []byte) ([]byte, error)
	Unpack(buf, payload []byte) error
}

type Comm interface {
	Rank() int
	Size() int
	// Wtime is a monotonic wall clock in seconds.
	Wtime() float64
	Barrier() error

	Isend(buf []byte, dt Datatype, dest, tag int) (Request, error)
	Irecv(buf []byte, dt Datatype, src, tag int) (Request, error)

	// IreduceScatter sums send element-wise across ranks and leaves
	// counts[rank] elements of the result in recv.
	IreduceScatter(send, recv []byte, counts []int, elem dtype.Type) (Request, error)

	Reduce(vals []float64, op Op, root int) ([]float64, error)
	Allreduce(vals []float64, op Op) ([]float64, error)

	// Abort unblocks every rank of the world with ErrAborted.
	Abort(code int)
	Finalize() error
}

// Contiguous is n plain bytes.
type Contiguous int

func (c Contiguous) Size() int { return int(c) }

func (c Contiguous) Pack(buf []byte) ([]byte, error) {
	if len(buf) < int(c) {
		return nil, errors.New("mpi: buffer shorter than datatype")
	}
	out := make([]byte, c)
	copy(out, buf)
	return out, nil
}

func (c Contiguous) Unpack(buf, payload []byte) error {
	if len(payload) != int(c) || len(buf) < int(c) {
		return errors.New("mpi: payload does not match datatype")
	}
	copy(buf, payload)
	return nil
}
