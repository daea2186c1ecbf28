package engine

import (
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/layout"
	"github.com/lightstep/commbench/mpi"
	"github.com/lightstep/commbench/tracing"
	"github.com/lightstep/commbench/validate"
)

const pt2ptTag = 1

// PointToPoint ping-pongs a vector layout between rank pairs. The
// two-rank variant has a single pair; the multi-pair variant pairs rank r
// with r+n/2 and averages over all ranks.
type PointToPoint struct {
	setup  Setup
	opts   config.Options
	name   string
	multi  bool
	series []int

	send, recv *buffer.Buffer
}

func NewLatency(opts config.Options, s Setup) (*PointToPoint, error) {
	if err := CheckRanks(config.Latency, s.Comm.Size()); err != nil {
		return nil, err
	}
	return newPointToPoint(opts, s, NameLatencyDT, false), nil
}

func NewMultiLatency(opts config.Options, s Setup) (*PointToPoint, error) {
	if err := CheckRanks(config.MultiLatency, s.Comm.Size()); err != nil {
		return nil, err
	}
	return newPointToPoint(opts, s, NameMultiLatDT, true), nil
}

func newPointToPoint(opts config.Options, s Setup, name string, multi bool) *PointToPoint {
	return &PointToPoint{
		setup:  s,
		opts:   opts,
		name:   name,
		multi:  multi,
		series: SizeSeries(opts.MinimumFor(), opts.MaxMessageSize),
	}
}

// Sizes returns the message sizes in bytes.
func (p *PointToPoint) Sizes() []int {
	return p.series
}

func (p *PointToPoint) Run() (Outcome, error) {
	out := Outcome{Benchmark: p.name}
	extent := 1
	if n := len(p.series); n > 0 {
		l, err := layout.Build(p.series[n-1], p.opts.DTBlockSize, p.opts.DTStrideSize)
		if err != nil {
			return out, err
		}
		if e := l.Extent(); e > extent {
			extent = e
		}
		l.Free()
	}
	bufs, free, err := allocate(p.setup.Provider, extent, extent)
	if err != nil {
		return out, err
	}
	defer free()
	p.send, p.recv = bufs[0], bufs[1]

	span := tracing.StartSpan(p.setup.tracer(), nil, "benchmark/"+p.name)
	defer span.Finish()
	for _, size := range p.series {
		errors, err := p.runSize(span, size)
		if err != nil {
			span.SetTag("error", true)
			return out, err
		}
		out.Sizes++
		if errors != 0 {
			out.Errors, out.FailedSize = errors, size
			break
		}
	}
	return out, nil
}

func (p *PointToPoint) partner() (int, bool) {
	comm := p.setup.Comm
	pairs := comm.Size() / 2
	if comm.Rank() < pairs {
		return comm.Rank() + pairs, true
	}
	return comm.Rank() - pairs, false
}

func (p *PointToPoint) runSize(parent opentracing.Span, size int) (int, error) {
	comm, clock, prov := p.setup.Comm, p.setup.clock(), p.setup.Provider
	span := tracing.StartSpan(p.setup.tracer(), parent, "size")
	span.SetTag("size", size)
	defer span.Finish()

	if err := prov.Fill(p.send, 'a'); err != nil {
		return 0, common.Wrap(common.ResourceError, "fill", err)
	}
	if err := prov.Fill(p.recv, 'b'); err != nil {
		return 0, common.Wrap(common.ResourceError, "fill", err)
	}
	plan := PlanFor(p.opts, size)
	l, err := layout.Build(size, p.opts.DTBlockSize, p.opts.DTStrideSize)
	if err != nil {
		return 0, err
	}
	defer l.Free()

	if err := comm.Barrier(); err != nil {
		return 0, err
	}
	partner, initiator := p.partner()
	sbuf, rbuf := p.send.Bytes(), p.recv.Bytes()
	var tStart float64
	for i := 0; i < plan.Warmup+plan.Measured; i++ {
		if i == plan.Warmup {
			tStart = clock.Now()
			if p.multi {
				if err := comm.Barrier(); err != nil {
					return 0, err
				}
			}
		}
		if initiator {
			if err := wait(comm.Isend(sbuf, l, partner, pt2ptTag)); err != nil {
				return 0, err
			}
			if err := wait(comm.Irecv(rbuf, l, partner, pt2ptTag)); err != nil {
				return 0, err
			}
		} else {
			if err := wait(comm.Irecv(rbuf, l, partner, pt2ptTag)); err != nil {
				return 0, err
			}
			if err := wait(comm.Isend(sbuf, l, partner, pt2ptTag)); err != nil {
				return 0, err
			}
		}
	}
	tEnd := clock.Now()
	latency := common.Time(tEnd-tStart).Micros() / (2 * float64(plan.Measured))

	if p.multi {
		sum, err := comm.Reduce([]float64{latency}, mpi.OpSum, root)
		if err != nil {
			return 0, err
		}
		if comm.Rank() == root {
			latency = sum[0] / float64(comm.Size())
		}
	}

	errors := 0
	if p.opts.Validate {
		local := 0
		if !p.sameView(l, sbuf, rbuf) {
			local = 1
		}
		sum, err := comm.Allreduce([]float64{float64(local)}, mpi.OpSum)
		if err != nil {
			return 0, err
		}
		errors = int(sum[0])
	}

	if p.setup.isRoot() {
		err := p.setup.Sink.PointToPoint(common.PointResult{
			Benchmark:    p.name,
			Title:        p.setup.Title,
			Size:         size,
			Block:        p.opts.DTBlockSize,
			Stride:       p.opts.DTStrideSize,
			AdjustedSize: l.Size(),
			LatencyUs:    latency,
			Validated:    p.opts.Validate,
			Errors:       errors,
		})
		if err != nil {
			return 0, err
		}
	}
	return errors, nil
}

// sameView reports whether the received view holds what the partner
// sent. Every rank fills its send buffer the same way.
func (p *PointToPoint) sameView(l *layout.Layout, sbuf, rbuf []byte) bool {
	sent, err := l.Pack(sbuf)
	if err != nil {
		return false
	}
	got, err := l.Pack(rbuf)
	if err != nil {
		return false
	}
	return validate.SameContent(sent, got)
}
