package mpi

import (
	"fmt"

	"github.com/lightstep/commbench/dtype"
)

func (c *comm) Barrier() error {
	if c.finalized.Load() {
		return commErr("barrier", ErrFinalized)
	}
	if c.size == 1 {
		return nil
	}
	if c.rank == 0 {
		for src := 1; src < c.size; src++ {
			if _, err := c.recv(src, tagBarrier); err != nil {
				return commErr("barrier", err)
			}
		}
		var first error
		for dest := 1; dest < c.size; dest++ {
			if err := c.send(dest, tagBarrier, nil); err != nil && first == nil {
				first = err
			}
		}
		return commErr("barrier", first)
	}
	if err := c.send(0, tagBarrier, nil); err != nil {
		return commErr("barrier", err)
	}
	_, err := c.recv(0, tagBarrier)
	return commErr("barrier", err)
}

// Reduce combines vals in rank order at root. Other ranks get nil.
func (c *comm) Reduce(vals []float64, op Op, root int) ([]float64, error) {
	if err := c.checkPeer("reduce", root); err != nil {
		return nil, err
	}
	if c.rank != root {
		return nil, commErr("reduce", c.send(root, tagReduce, dtype.EncodeFloat64s(vals)))
	}
	parts := make([][]float64, c.size)
	parts[root] = vals
	for src := 0; src < c.size; src++ {
		if src == root {
			continue
		}
		payload, err := c.recv(src, tagReduce)
		if err != nil {
			return nil, commErr("reduce", err)
		}
		parts[src] = dtype.DecodeFloat64s(payload)
		if len(parts[src]) != len(vals) {
			return nil, commErr("reduce", fmt.Errorf("rank %d sent %d values, want %d", src, len(parts[src]), len(vals)))
		}
	}
	acc := append([]float64(nil), parts[0]...)
	for _, p := range parts[1:] {
		for i := range acc {
			acc[i] = op.apply(acc[i], p[i])
		}
	}
	return acc, nil
}

func (c *comm) Allreduce(vals []float64, op Op) ([]float64, error) {
	acc, err := c.Reduce(vals, op, 0)
	if err != nil {
		return nil, err
	}
	if c.rank == 0 {
		payload := dtype.EncodeFloat64s(acc)
		for dest := 1; dest < c.size; dest++ {
			if err := c.send(dest, tagBcast, payload); err != nil {
				return nil, commErr("allreduce", err)
			}
		}
		return acc, nil
	}
	payload, err := c.recv(0, tagBcast)
	if err != nil {
		return nil, commErr("allreduce", err)
	}
	return dtype.DecodeFloat64s(payload), nil
}

func displacements(counts []int) []int {
	displs := make([]int, len(counts))
	for i := 1; i < len(counts); i++ {
		displs[i] = displs[i-1] + counts[i-1]
	}
	return displs
}

// IreduceScatter exchanges partition segments pairwise on a background
// goroutine and sums them in rank order. send must not be modified and
// recv must not be read until the request completes.
func (c *comm) IreduceScatter(send, recv []byte, counts []int, elem dtype.Type) (Request, error) {
	if c.finalized.Load() {
		return nil, commErr("ireduce_scatter", ErrFinalized)
	}
	if len(counts) != c.size {
		return nil, commErr("ireduce_scatter", fmt.Errorf("%d counts for %d ranks", len(counts), c.size))
	}
	total := 0
	for _, n := range counts {
		if n < 0 {
			return nil, commErr("ireduce_scatter", fmt.Errorf("negative count %d", n))
		}
		total += n
	}
	es := elem.Size()
	if total*es > len(send) || counts[c.rank]*es > len(recv) {
		return nil, commErr("ireduce_scatter", fmt.Errorf("buffers too small for %d elements", total))
	}

	displs := displacements(counts)
	segment := func(rank int) []byte {
		return send[displs[rank]*es : (displs[rank]+counts[rank])*es]
	}
	req := newRequest()
	go func() {
		req.finish(commErr("ireduce_scatter", c.reduceScatter(segment, recv, counts[c.rank], elem)))
	}()
	return req, nil
}

func (c *comm) reduceScatter(segment func(int) []byte, recv []byte, n int, elem dtype.Type) error {
	for dest := 0; dest < c.size; dest++ {
		if dest != c.rank {
			if err := c.send(dest, tagReduceScatter, segment(dest)); err != nil {
				return err
			}
		}
	}
	parts := make([][]byte, c.size)
	parts[c.rank] = segment(c.rank)
	want := n * elem.Size()
	for src := 0; src < c.size; src++ {
		if src == c.rank {
			continue
		}
		p, err := c.recv(src, tagReduceScatter)
		if err != nil {
			return err
		}
		if len(p) != want {
			return fmt.Errorf("rank %d sent %d bytes, want %d", src, len(p), want)
		}
		parts[src] = p
	}
	acc := make([]byte, want)
	copy(acc, parts[0])
	for _, p := range parts[1:] {
		dtype.Sum(elem, acc, p, n)
	}
	copy(recv, acc)
	return nil
}
