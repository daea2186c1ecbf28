package engine

import (
	"github.com/golang/glog"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/lightstep/commbench/aggregate"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/dtype"
	"github.com/lightstep/commbench/mpi"
	"github.com/lightstep/commbench/tracing"
	"github.com/lightstep/commbench/validate"
)

type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseLatency
	PhaseOverlap
	PhaseDone
)

var phaseNames = [...]string{"warmup", "latency", "overlap", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Collective measures a non-blocking reduce-scatter. For every size it
// goes through warmup, a pure latency pass and an overlap pass whose
// compute target is the mean latency of the pure pass.
type Collective struct {
	setup Setup
	opts  config.Options
	elem  dtype.Type
	check validate.ReduceScatter

	phase  Phase
	size   int
	counts []int
	send   []byte
	recv   []byte
}

func NewCollective(opts config.Options, s Setup) (*Collective, error) {
	opts.Kind = config.Collective
	if err := CheckOptions(opts, s.Comm.Size()); err != nil {
		return nil, err
	}
	pattern, err := validate.ParsePattern(opts.Pattern)
	if err != nil {
		return nil, common.Wrap(common.ConfigurationError, "pattern", err)
	}
	elem := opts.ElementType()
	return &Collective{
		setup: s,
		opts:  opts,
		elem:  elem,
		check: validate.ReduceScatter{
			Type:      elem,
			Pattern:   pattern,
			Tolerance: opts.ValidationTolerance,
		},
	}, nil
}

func (c *Collective) Phase() Phase {
	return c.phase
}

// Sizes returns the message sizes, in elements.
func (c *Collective) Sizes() []int {
	return ElementSeries(c.opts.MinMessageSize, c.opts.MaxMessageSize, c.elem.Size())
}

func (c *Collective) Run() (Outcome, error) {
	out := Outcome{Benchmark: NameIreduceScatter}
	comm, p := c.setup.Comm, c.setup.Provider
	es := c.elem.Size()
	recvBytes := es * (c.opts.MaxMessageSize/comm.Size()/es + 1)
	bufs, free, err := allocate(p, c.opts.MaxMessageSize, recvBytes)
	if err != nil {
		return out, err
	}
	defer free()
	if err := p.Fill(bufs[0], 1); err != nil {
		return out, common.Wrap(common.ResourceError, "fill", err)
	}
	if err := p.Fill(bufs[1], 0); err != nil {
		return out, common.Wrap(common.ResourceError, "fill", err)
	}
	c.send, c.recv = bufs[0].Bytes(), bufs[1].Bytes()

	span := tracing.StartSpan(c.setup.tracer(), nil, "benchmark/"+NameIreduceScatter)
	defer span.Finish()
	for _, size := range c.Sizes() {
		errors, err := c.runSize(span, size)
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
	c.phase = PhaseDone
	return out, nil
}

func (c *Collective) runSize(parent opentracing.Span, size int) (int, error) {
	comm := c.setup.Comm
	tracer := c.setup.tracer()
	plan := PlanFor(c.opts, size)
	c.size = size
	c.counts = validate.ScatterPartition(size, comm.Size())

	span := tracing.StartSpan(tracer, parent, "size")
	span.SetTag("size", size*c.elem.Size())
	defer span.Finish()

	errors := 0
	c.phase = PhaseWarmup
	ps := tracing.StartSpan(tracer, span, "phase/warmup")
	for i := 0; i < plan.Warmup; i++ {
		_, n, err := c.latencyIteration(i)
		if err != nil {
			ps.Finish()
			return 0, err
		}
		errors += n
	}
	ps.Finish()

	c.phase = PhaseLatency
	ps = tracing.StartSpan(tracer, span, "phase/latency")
	timer := 0.0
	for i := 0; i < plan.Measured; i++ {
		t, n, err := c.latencyIteration(plan.Warmup + i)
		if err != nil {
			ps.Finish()
			return 0, err
		}
		timer += t
		errors += n
	}
	ps.Finish()
	latency := timer / float64(plan.Measured)
	if err := comm.Barrier(); err != nil {
		return 0, err
	}

	c.phase = PhaseOverlap
	ps = tracing.StartSpan(tracer, span, "phase/overlap")
	var local aggregate.Local
	var samples []float64
	graph := c.opts.Graph && c.setup.isRoot()
	for i := 0; i < plan.Measured; i++ {
		s, n, err := c.overlapIteration(i, latency)
		if err != nil {
			ps.Finish()
			return 0, err
		}
		local.Add(s)
		errors += n
		if graph {
			samples = append(samples, s.Total*1e6)
		}
	}
	ps.Finish()
	if err := comm.Barrier(); err != nil {
		return 0, err
	}

	global := 0
	if c.opts.Validate {
		sum, err := comm.Allreduce([]float64{float64(errors)}, mpi.OpSum)
		if err != nil {
			return 0, err
		}
		global = int(sum[0])
	}
	glog.V(1).Infof("rank %d size %d: %d iterations, spread %.3gus", comm.Rank(), size,
		local.Count(), local.Spread()*1e6)

	rep, ok, err := aggregate.Reduce(comm, &local, plan.Measured, latency*1e6)
	if err != nil {
		return 0, err
	}
	if ok && c.setup.isRoot() {
		if err := c.report(size, rep, global, samples); err != nil {
			return 0, err
		}
	}
	return global, nil
}

func (c *Collective) report(size int, rep aggregate.Report, errors int, samples []float64) error {
	sink := c.setup.Sink
	bytes := size * c.elem.Size()
	err := sink.Collective(common.CollectiveResult{
		Benchmark:  NameIreduceScatter,
		Title:      c.setup.Title,
		Size:       bytes,
		OverallUs:  rep.OverallUs,
		ComputeUs:  rep.ComputeUs,
		PureCommUs: rep.PureCommUs,
		MinCommUs:  rep.MinCommUs,
		MaxCommUs:  rep.MaxCommUs,
		InitUs:     rep.InitUs,
		TestUs:     rep.TestUs,
		WaitUs:     rep.WaitUs,
		OverlapPct: rep.OverlapPct,
		Efficiency: rep.Efficiency,
		Validated:  c.opts.Validate,
		Errors:     errors,
	})
	if err != nil || samples == nil {
		return err
	}
	return sink.Samples(common.SampleSeries{
		Benchmark: NameIreduceScatter,
		Title:     c.setup.Title,
		Size:      bytes,
		AvgUs:     rep.OverallUs,
		Samples:   samples,
	})
}

func (c *Collective) issue() (mpi.Request, error) {
	return c.setup.Comm.IreduceScatter(c.send, c.recv, c.counts, c.elem)
}

// validationPass refills the buffers for iter and runs the extra
// collectives that precede a validated iteration.
func (c *Collective) validationPass(iter int) error {
	if !c.opts.Validate {
		return nil
	}
	comm := c.setup.Comm
	c.check.Fill(c.send, c.recv, c.size, comm.Rank(), iter)
	for j := 0; j < c.opts.WarmupValidation; j++ {
		if err := comm.Barrier(); err != nil {
			return err
		}
		if err := wait(c.issue()); err != nil {
			return err
		}
	}
	return comm.Barrier()
}

func (c *Collective) validateIteration(iter int) int {
	if !c.opts.Validate {
		return 0
	}
	comm := c.setup.Comm
	return c.check.Validate(c.recv, c.size, c.counts, comm.Rank(), comm.Size(), iter)
}

func (c *Collective) latencyIteration(iter int) (float64, int, error) {
	comm, clock := c.setup.Comm, c.setup.clock()
	if err := c.validationPass(iter); err != nil {
		return 0, 0, err
	}
	if err := comm.Barrier(); err != nil {
		return 0, 0, err
	}
	t0 := clock.Now()
	if err := wait(c.issue()); err != nil {
		return 0, 0, err
	}
	t1 := clock.Now()
	if err := comm.Barrier(); err != nil {
		return 0, 0, err
	}
	return t1 - t0, c.validateIteration(iter), nil
}

func (c *Collective) overlapIteration(iter int, target float64) (aggregate.Sample, int, error) {
	var s aggregate.Sample
	comm, clock := c.setup.Comm, c.setup.clock()
	if err := c.validationPass(iter); err != nil {
		return s, 0, err
	}
	start := clock.Now()

	t := clock.Now()
	req, err := c.issue()
	if err != nil {
		return s, 0, err
	}
	s.Init = clock.Now() - t

	t = clock.Now()
	_, s.Test, err = c.setup.Compute.RunPolling(target, req)
	if err != nil {
		return s, 0, err
	}
	s.Compute = clock.Now() - t

	t = clock.Now()
	if err := req.Wait(); err != nil {
		return s, 0, err
	}
	s.Wait = clock.Now() - t
	s.Total = clock.Now() - start

	if err := comm.Barrier(); err != nil {
		return s, 0, err
	}
	return s, c.validateIteration(iter), nil
}
