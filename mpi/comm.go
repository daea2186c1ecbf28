package mpi

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightstep/commbench/common"
)

// Internal tags are negative so they never collide with user tags.
const (
	tagBarrier = -1 - iota
	tagReduceScatter
	tagReduce
	tagBcast
)

// finalizeAbortCode is the communication failure exit status.
const finalizeAbortCode = 4

// router moves payloads between the mailboxes of a world.
type router interface {
	send(src, dest, tag int, payload []byte) error
	abort(code int)
	close() error
}

type comm struct {
	rank, size int
	box        *mailbox
	router     router
	epoch      time.Time
	finalized  atomic.Bool
}

func newComm(rank, size int, box *mailbox, r router, epoch time.Time) *comm {
	return &comm{rank: rank, size: size, box: box, router: r, epoch: epoch}
}

func (c *comm) Rank() int { return c.rank }
func (c *comm) Size() int { return c.size }

func (c *comm) Wtime() float64 {
	return time.Since(c.epoch).Seconds()
}

func commErr(op string, err error) error {
	return common.Wrap(common.CommunicationError, op, err)
}

func (c *comm) checkPeer(op string, peer int) error {
	if c.finalized.Load() {
		return commErr(op, ErrFinalized)
	}
	if peer < 0 || peer >= c.size {
		return commErr(op, fmt.Errorf("%w: %d of %d", ErrInvalidRank, peer, c.size))
	}
	return nil
}

func (c *comm) send(dest, tag int, payload []byte) error {
	return c.router.send(c.rank, dest, tag, payload)
}

func (c *comm) recv(src, tag int) ([]byte, error) {
	return c.box.get(src, tag)
}

// Isend is eager: the payload is in the destination mailbox when the
// returned request exists.
func (c *comm) Isend(buf []byte, dt Datatype, dest, tag int) (Request, error) {
	if err := c.checkPeer("isend", dest); err != nil {
		return nil, err
	}
	payload, err := dt.Pack(buf)
	if err != nil {
		return nil, commErr("isend", err)
	}
	return completed(commErr("isend", c.send(dest, tag, payload))), nil
}

func (c *comm) Irecv(buf []byte, dt Datatype, src, tag int) (Request, error) {
	if err := c.checkPeer("irecv", src); err != nil {
		return nil, err
	}
	req := newRequest()
	go func() {
		payload, err := c.recv(src, tag)
		if err == nil {
			err = dt.Unpack(buf, payload)
		}
		req.finish(commErr("irecv", err))
	}()
	return req, nil
}

func (c *comm) Abort(code int) {
	c.router.abort(code)
}

// Finalize synchronizes with the other ranks and releases the transport.
// A failed final barrier aborts the world so no peer keeps waiting.
func (c *comm) Finalize() error {
	if c.finalized.Load() {
		return nil
	}
	err := c.Barrier()
	if err != nil && !errors.Is(err, ErrAborted) {
		c.router.abort(finalizeAbortCode)
	}
	c.finalized.Store(true)
	if cerr := c.router.close(); err == nil {
		err = commErr("finalize", cerr)
	}
	return err
}
