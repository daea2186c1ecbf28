// Package engine runs the benchmark loops: the per-size state machine of
// the non-blocking reduce-scatter benchmark and the layout ping-pong
// benchmarks.
package engine

import (
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/compute"
	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/mpi"
	"github.com/lightstep/commbench/report"
	"github.com/lightstep/commbench/validate"
)

const (
	NameIreduceScatter = "osu_ireduce_scatter"
	NameLatencyDT      = "osu_latency_dt"
	NameMultiLatDT     = "osu_multi_lat_dt"

	root = 0
)

// SizeSeries is the power-of-two progression from min to max inclusive.
// A minimum of zero is followed by one.
func SizeSeries(min, max int) []int {
	var sizes []int
	for size := min; size <= max; {
		sizes = append(sizes, size)
		if size == 0 {
			size = 1
		} else {
			size *= 2
		}
	}
	return sizes
}

// ElementSeries is SizeSeries in elements of elemSize bytes, for byte
// limits. It never starts below one element.
func ElementSeries(minBytes, maxBytes, elemSize int) []int {
	min := minBytes / elemSize
	if min < 1 {
		min = 1
	}
	var sizes []int
	for size := min; size*elemSize <= maxBytes; size *= 2 {
		sizes = append(sizes, size)
	}
	return sizes
}

type IterationPlan struct {
	Warmup   int
	Measured int
}

// PlanFor returns the iteration counts for a size, in the unit the
// benchmark loops over.
func PlanFor(o config.Options, size int) IterationPlan {
	if size > o.LargeMessageSize {
		return IterationPlan{Warmup: o.SkipLarge, Measured: o.IterationsLarge}
	}
	return IterationPlan{Warmup: o.Skip, Measured: o.Iterations}
}

// Compute is the dummy computation run during the overlap pass.
type Compute interface {
	RunPolling(target float64, req compute.Tester) (elapsed, testTime float64, err error)
}

// Setup holds what a rank needs to run a benchmark. Sink is only used on
// the root rank and may be nil elsewhere.
type Setup struct {
	Comm     mpi.Comm
	Provider buffer.Provider
	Compute  Compute
	Clock    compute.DurationSource
	Tracer   opentracing.Tracer
	Sink     report.Sink
	Title    string
}

func (s Setup) clock() compute.DurationSource {
	if s.Clock != nil {
		return s.Clock
	}
	return compute.ClockFunc(s.Comm.Wtime)
}

func (s Setup) tracer() opentracing.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return opentracing.NoopTracer{}
}

func (s Setup) isRoot() bool {
	return s.Comm.Rank() == root && s.Sink != nil
}

// Outcome summarizes a run. FailedSize is the size, in the benchmark's
// loop unit, that stopped the run on a validation error.
type Outcome struct {
	Benchmark  string
	Sizes      int
	FailedSize int
	Errors     int
}

func (o Outcome) Err() error {
	if o.Errors == 0 {
		return nil
	}
	return common.Errorf(common.ValidationError, "validate",
		"%s: %d errors on message size %d", o.Benchmark, o.Errors, o.FailedSize)
}

func rankErr(format string, args ...interface{}) error {
	return common.Errorf(common.ConfigurationError, "ranks", format, args...)
}

// CheckRanks reports whether a benchmark of kind can run on n ranks.
func CheckRanks(kind config.Kind, n int) error {
	switch kind {
	case config.Latency:
		if n != 2 {
			return rankErr("This test requires exactly two processes")
		}
	case config.MultiLatency:
		if n < 2 || n%2 != 0 {
			return rankErr("This test requires an even number of processes, got %d", n)
		}
	default:
		if n < 2 {
			return rankErr("This test requires at least two processes")
		}
	}
	return nil
}

// CheckOptions extends CheckRanks with the checks that depend on both the
// options and the rank count. Validated collectives fail when the element
// type cannot hold the expected sums.
func CheckOptions(opts config.Options, n int) error {
	if err := CheckRanks(opts.Kind, n); err != nil {
		return err
	}
	if opts.Kind != config.Collective || !opts.Validate {
		return nil
	}
	pattern, err := validate.ParsePattern(opts.Pattern)
	if err != nil {
		return common.Wrap(common.ConfigurationError, "pattern", err)
	}
	v := validate.ReduceScatter{Type: opts.ElementType(), Pattern: pattern}
	if err := v.Representable(n); err != nil {
		return common.Wrap(common.ConfigurationError, "ranks", err)
	}
	return nil
}

func wait(req mpi.Request, err error) error {
	if err != nil {
		return err
	}
	return req.Wait()
}

func allocate(p buffer.Provider, sizes ...int) ([]*buffer.Buffer, func(), error) {
	var bufs []*buffer.Buffer
	free := func() {
		for _, b := range bufs {
			p.Free(b)
		}
	}
	for _, size := range sizes {
		b, err := p.Allocate(size)
		if err != nil {
			free()
			return nil, nil, fmt.Errorf("could not allocate memory: %w", err)
		}
		bufs = append(bufs, b)
	}
	return bufs, free, nil
}
