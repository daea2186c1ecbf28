package engine

import (
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/compute"
	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/dtype"
	"github.com/lightstep/commbench/mpi"
)

// A power of two keeps every clock reading exact.
const step = 1.0 / (1 << 20)

// stepClock advances by a fixed step on every reading.
type stepClock struct {
	now, step float64
}

func (c *stepClock) Now() float64 {
	v := c.now
	c.now += c.step
	return v
}

// fakeCompute advances the rank's clock by the target.
type fakeCompute struct {
	clock *stepClock
}

func (f fakeCompute) RunPolling(target float64, _ compute.Tester) (float64, float64, error) {
	f.clock.now += target
	return target, 0, nil
}

type recordingSink struct {
	mu         sync.Mutex
	collective []common.CollectiveResult
	points     []common.PointResult
	samples    []common.SampleSeries
}

func (s *recordingSink) Preamble(common.Header) error { return nil }

func (s *recordingSink) Collective(r common.CollectiveResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collective = append(s.collective, r)
	return nil
}

func (s *recordingSink) PointToPoint(r common.PointResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, r)
	return nil
}

func (s *recordingSink) Samples(series common.SampleSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, series)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func setupFor(c mpi.Comm, sink *recordingSink) Setup {
	clock := &stepClock{step: step}
	s := Setup{
		Comm:     c,
		Provider: buffer.NewProvider(buffer.Host, 0),
		Compute:  fakeCompute{clock},
		Clock:    clock,
		Title:    "test",
	}
	if c.Rank() == 0 && sink != nil {
		s.Sink = sink
	}
	return s
}

func collectiveOptions() config.Options {
	o := config.Defaults(config.Collective)
	o.MinMessageSize = 4
	o.MaxMessageSize = 64
	o.Iterations, o.Skip = 5, 2
	o.IterationsLarge, o.SkipLarge = 5, 2
	o.WarmupValidation = 1
	return o
}

func runCollective(t *testing.T, ranks int, opts config.Options, wrap func(mpi.Comm) mpi.Comm) ([]Outcome, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	outcomes := make([]Outcome, ranks)
	errs := mpi.NewLocalWorld(ranks).Run(func(c mpi.Comm) error {
		if wrap != nil {
			c = wrap(c)
		}
		bench, err := NewCollective(opts, setupFor(c, sink))
		if err != nil {
			return err
		}
		out, err := bench.Run()
		outcomes[c.Rank()] = out
		if bench.Phase() != PhaseDone && err == nil {
			t.Errorf("rank %d finished in phase %v", c.Rank(), bench.Phase())
		}
		return err
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	return outcomes, sink
}

func TestSizeSeries(t *testing.T) {
	for _, tc := range []struct {
		min, max int
		want     []int
	}{
		{0, 4, []int{0, 1, 2, 4}},
		{1, 8, []int{1, 2, 4, 8}},
		{3, 20, []int{3, 6, 12}},
		{8, 4, nil},
	} {
		if got := SizeSeries(tc.min, tc.max); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SizeSeries(%d, %d) = %v, want %v", tc.min, tc.max, got, tc.want)
		}
	}
}

func TestElementSeries(t *testing.T) {
	if got, want := ElementSeries(4, 64, 4), []int{1, 2, 4, 8, 16}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ElementSeries(0, 16, 8), []int{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := ElementSeries(4, 2, 4); got != nil {
		t.Errorf("max below one element: %v", got)
	}
}

func TestPlanFor(t *testing.T) {
	o := config.Defaults(config.Collective)
	if p := PlanFor(o, o.LargeMessageSize); p != (IterationPlan{Warmup: 200, Measured: 1000}) {
		t.Errorf("at threshold: %+v", p)
	}
	if p := PlanFor(o, o.LargeMessageSize+1); p != (IterationPlan{Warmup: 10, Measured: 100}) {
		t.Errorf("above threshold: %+v", p)
	}
}

func TestWarmupDoesNotChangeAverages(t *testing.T) {
	opts := collectiveOptions()
	opts.Skip, opts.SkipLarge = 0, 0
	_, cold := runCollective(t, 2, opts, nil)
	opts.Skip, opts.SkipLarge = 10, 10
	_, warm := runCollective(t, 2, opts, nil)

	if len(cold.collective) != 5 || len(cold.collective) != len(warm.collective) {
		t.Fatalf("%d and %d results", len(cold.collective), len(warm.collective))
	}
	for i := range cold.collective {
		if cold.collective[i] != warm.collective[i] {
			t.Errorf("size %d:\n%+v\n%+v", cold.collective[i].Size, cold.collective[i], warm.collective[i])
		}
	}
	r := cold.collective[0]
	if r.PureCommUs != step*1e6 {
		t.Errorf("pure latency %v, want one clock step", r.PureCommUs)
	}
	if r.ComputeUs <= r.PureCommUs || r.OverallUs <= r.ComputeUs {
		t.Errorf("implausible overlap timings %+v", r)
	}
}

func TestCollectiveValidatesEndToEnd(t *testing.T) {
	opts := collectiveOptions()
	opts.MinMessageSize, opts.MaxMessageSize = 64, 64
	opts.Validate = true
	opts.Pattern = config.PatternConstant
	opts.Graph = true
	outcomes, sink := runCollective(t, 4, opts, nil)

	for rank, out := range outcomes {
		if out.Errors != 0 || out.Sizes != 1 || out.Err() != nil {
			t.Errorf("rank %d: %+v", rank, out)
		}
	}
	if len(sink.collective) != 1 {
		t.Fatalf("%d results", len(sink.collective))
	}
	r := sink.collective[0]
	if r.Size != 64 || !r.Validated || r.Errors != 0 || !r.Passed() {
		t.Errorf("result %+v", r)
	}
	if len(sink.samples) != 1 || len(sink.samples[0].Samples) != opts.Iterations {
		t.Errorf("graph samples %+v", sink.samples)
	}
}

func TestCollectiveCyclicPattern(t *testing.T) {
	opts := collectiveOptions()
	opts.Validate = true
	opts.Datatype = "double"
	outcomes, sink := runCollective(t, 3, opts, nil)
	if outcomes[0].Errors != 0 {
		t.Errorf("%+v", outcomes[0])
	}
	if len(sink.collective) != 4 {
		t.Errorf("%d sizes, want 4", len(sink.collective))
	}
}

// corruptComm damages the first received element on rank 0.
type corruptComm struct {
	mpi.Comm
}

type corruptRequest struct {
	mpi.Request
	recv []byte
}

func (r corruptRequest) Wait() error {
	if err := r.Request.Wait(); err != nil {
		return err
	}
	dtype.Float32.Set(r.recv, 0, -1)
	return nil
}

func (c corruptComm) IreduceScatter(send, recv []byte, counts []int, elem dtype.Type) (mpi.Request, error) {
	req, err := c.Comm.IreduceScatter(send, recv, counts, elem)
	if err != nil || c.Rank() != 0 {
		return req, err
	}
	return corruptRequest{req, recv}, nil
}

func TestCollectiveStopsOnValidationError(t *testing.T) {
	opts := collectiveOptions()
	opts.Validate = true
	outcomes, sink := runCollective(t, 2, opts, func(c mpi.Comm) mpi.Comm { return corruptComm{c} })
	out := outcomes[0]
	if out.Sizes != 1 || out.FailedSize != 1 || out.Errors == 0 {
		t.Errorf("outcome %+v", out)
	}
	if common.KindOf(out.Err()) != common.ValidationError {
		t.Errorf("error %v", out.Err())
	}
	if len(sink.collective) != 1 || sink.collective[0].Passed() {
		t.Errorf("results %+v", sink.collective)
	}
}

func TestCollectiveNeedsTwoRanks(t *testing.T) {
	c := mpi.NewLocalWorld(1).Comm(0)
	_, err := NewCollective(collectiveOptions(), setupFor(c, nil))
	if common.KindOf(err) != common.ConfigurationError {
		t.Errorf("got %v", err)
	}
}

func TestCheckOptionsHalfSums(t *testing.T) {
	o := collectiveOptions()
	o.Validate = true
	o.Pattern = "cyclic"
	o.Datatype = "half"
	if err := CheckOptions(o, 16); err != nil {
		t.Errorf("16 ranks: %v", err)
	}
	if err := CheckOptions(o, 90); common.KindOf(err) != common.ConfigurationError {
		t.Errorf("90 ranks: got %v", err)
	}
	o.Validate = false
	if err := CheckOptions(o, 90); err != nil {
		t.Errorf("90 ranks without validation: %v", err)
	}
}

func latencyOptions() config.Options {
	o := config.Defaults(config.Latency)
	o.MaxMessageSize = 64
	o.Iterations, o.Skip = 4, 1
	o.IterationsLarge, o.SkipLarge = 2, 1
	o.DTBlockSize, o.DTStrideSize = 1, 2
	return o
}

func TestLatencyFromZero(t *testing.T) {
	opts := latencyOptions()
	opts.MaxMessageSize = 4
	opts.Validate = true
	sink := &recordingSink{}
	errs := mpi.NewLocalWorld(2).Run(func(c mpi.Comm) error {
		p, err := NewLatency(opts, setupFor(c, sink))
		if err != nil {
			return err
		}
		p.series = SizeSeries(0, opts.MaxMessageSize)
		out, err := p.Run()
		if err == nil && out.Errors != 0 {
			t.Errorf("rank %d: %+v", c.Rank(), out)
		}
		return err
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	var sizes []int
	for _, r := range sink.points {
		sizes = append(sizes, r.Size)
		if r.AdjustedSize != r.Size || r.Errors != 0 || !r.Validated {
			t.Errorf("result %+v", r)
		}
	}
	if want := []int{0, 1, 2, 4}; !reflect.DeepEqual(sizes, want) {
		t.Errorf("sizes %v, want %v", sizes, want)
	}
}

func TestLatencyRaisesMinimumToBlock(t *testing.T) {
	opts := latencyOptions()
	opts.MinMessageSize = 0
	opts.DTBlockSize, opts.DTStrideSize = 4, 8
	c := mpi.NewLocalWorld(2).Comm(0)
	p, err := NewLatency(opts, setupFor(c, nil))
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{4, 8, 16, 32, 64}; !reflect.DeepEqual(p.Sizes(), want) {
		t.Errorf("sizes %v, want %v", p.Sizes(), want)
	}
}

func TestLatencyLayout(t *testing.T) {
	opts := latencyOptions()
	opts.DTBlockSize, opts.DTStrideSize = 3, 5
	opts.MaxMessageSize = 16
	opts.Validate = true
	sink := &recordingSink{}
	errs := mpi.NewLocalWorld(2).Run(func(c mpi.Comm) error {
		p, err := NewLatency(opts, setupFor(c, sink))
		if err != nil {
			return err
		}
		_, err = p.Run()
		return err
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	// 3, 6, 12 bytes requested; whole blocks only.
	want := map[int]int{3: 3, 6: 6, 12: 12}
	if len(sink.points) != len(want) {
		t.Fatalf("results %+v", sink.points)
	}
	for _, r := range sink.points {
		if want[r.Size] != r.AdjustedSize || r.Block != 3 || r.Stride != 5 || r.Errors != 0 {
			t.Errorf("result %+v", r)
		}
		if r.LatencyUs <= 0 {
			t.Errorf("latency %v", r.LatencyUs)
		}
	}
}

func TestLatencyNeedsTwoRanks(t *testing.T) {
	c := mpi.NewLocalWorld(3).Comm(0)
	_, err := NewLatency(latencyOptions(), setupFor(c, nil))
	if common.KindOf(err) != common.ConfigurationError {
		t.Errorf("got %v", err)
	}
}

func TestMultiLatency(t *testing.T) {
	opts := latencyOptions()
	opts.Kind = config.MultiLatency
	opts.MaxMessageSize = 8
	sink := &recordingSink{}
	errs := mpi.NewLocalWorld(4).Run(func(c mpi.Comm) error {
		p, err := NewMultiLatency(opts, setupFor(c, sink))
		if err != nil {
			return err
		}
		_, err = p.Run()
		return err
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	if len(sink.points) != 4 {
		t.Fatalf("results %+v", sink.points)
	}
	// Each rank reads its clock twice around the timed loop.
	for _, r := range sink.points {
		if want := step * 1e6 / (2 * float64(opts.Iterations)); math.Abs(r.LatencyUs-want) > 1e-12 {
			t.Errorf("size %d latency %v, want %v", r.Size, r.LatencyUs, want)
		}
	}
}

func TestMultiLatencyNeedsEvenRanks(t *testing.T) {
	for _, n := range []int{1, 3, 5} {
		c := mpi.NewLocalWorld(n).Comm(0)
		_, err := NewMultiLatency(latencyOptions(), setupFor(c, nil))
		if common.KindOf(err) != common.ConfigurationError {
			t.Errorf("%d ranks: got %v", n, err)
		}
	}
}

func TestOutcomeErr(t *testing.T) {
	if err := (Outcome{Benchmark: "b", Sizes: 3}).Err(); err != nil {
		t.Errorf("clean outcome: %v", err)
	}
	err := Outcome{Benchmark: "b", Errors: 2, FailedSize: 16}.Err()
	var ce *common.Error
	if !errors.As(err, &ce) || ce.Kind != common.ValidationError {
		t.Errorf("got %v", err)
	}
}
