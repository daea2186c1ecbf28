// Package aggregate turns per-iteration timings into the reported
// statistics, first per rank and then across ranks.
package aggregate

import (
	"math"

	"github.com/GaryBoone/GoStats/stats"

	"github.com/lightstep/commbench/mpi"
)

// Sample is one overlap-pass iteration, in seconds.
type Sample struct {
	Total   float64
	Init    float64
	Compute float64
	Wait    float64
	Test    float64
}

func (s Sample) add(o Sample) Sample {
	return Sample{
		Total:   s.Total + o.Total,
		Init:    s.Init + o.Init,
		Compute: s.Compute + o.Compute,
		Wait:    s.Wait + o.Wait,
		Test:    s.Test + o.Test,
	}
}

// Local accumulates the samples of one rank for one message size.
type Local struct {
	sums   Sample
	totals stats.Stats
}

func (l *Local) Add(s Sample) {
	l.sums = l.sums.add(s)
	l.totals.Update(s.Total)
}

func (l *Local) Count() int {
	return l.totals.Count()
}

func (l *Local) Sums() Sample {
	return l.sums
}

// Spread returns the population standard deviation of the iteration
// totals, in seconds.
func (l *Local) Spread() float64 {
	if l.totals.Count() == 0 {
		return 0
	}
	return l.totals.PopulationStandardDeviation()
}

// Report is the cross-rank result in microseconds and percent.
type Report struct {
	OverallUs  float64
	PureCommUs float64
	MinCommUs  float64
	MaxCommUs  float64
	InitUs     float64
	ComputeUs  float64
	WaitUs     float64
	TestUs     float64
	OverlapPct float64
	Efficiency float64
}

const (
	iOverall = iota
	iCompute
	iInit
	iWait
	iTest
	iPure
	nValues
)

// perIteration converts the sums of l into microseconds per iteration.
func perIteration(l *Local, iterations int, pureUs float64) []float64 {
	vals := make([]float64, nValues)
	if iterations > 0 {
		s := l.Sums()
		scale := 1e6 / float64(iterations)
		vals[iOverall] = s.Total * scale
		vals[iCompute] = s.Compute * scale
		vals[iInit] = s.Init * scale
		vals[iWait] = s.Wait * scale
		vals[iTest] = s.Test * scale
	}
	vals[iPure] = pureUs
	return vals
}

// Summarize builds a report from values already summed over ranks.
func Summarize(sums []float64, ranks int, minPure, maxPure float64) Report {
	avg := func(i int) float64 {
		if ranks < 1 {
			return 0
		}
		return sums[i] / float64(ranks)
	}
	r := Report{
		OverallUs:  avg(iOverall),
		PureCommUs: avg(iPure),
		MinCommUs:  minPure,
		MaxCommUs:  maxPure,
		InitUs:     avg(iInit),
		ComputeUs:  avg(iCompute),
		WaitUs:     avg(iWait),
		TestUs:     avg(iTest),
	}
	r.OverlapPct = Overlap(r.ComputeUs, r.OverallUs)
	r.Efficiency = Efficiency(r.OverallUs, r.ComputeUs, r.TestUs, r.PureCommUs)
	return r
}

// Overlap is the share of the overall time spent computing.
func Overlap(compute, overall float64) float64 {
	if overall <= 0 {
		return 0
	}
	return 100 * compute / overall
}

// Efficiency is how much of the pure communication time was hidden
// behind computation, clamped at zero.
func Efficiency(overall, compute, test, pure float64) float64 {
	if pure <= 0 {
		return 0
	}
	e := 100 - (overall-(compute-test))/pure*100
	if e < 0 || math.IsNaN(e) {
		return 0
	}
	return e
}

// Reduce combines the local statistics of every rank. pureUs is this
// rank's mean latency from the pure communication pass. Only the root
// gets a report; the others get false.
func Reduce(comm mpi.Comm, local *Local, iterations int, pureUs float64) (Report, bool, error) {
	const root = 0
	sums, err := comm.Reduce(perIteration(local, iterations, pureUs), mpi.OpSum, root)
	if err != nil {
		return Report{}, false, err
	}
	lo, err := comm.Reduce([]float64{pureUs}, mpi.OpMin, root)
	if err != nil {
		return Report{}, false, err
	}
	hi, err := comm.Reduce([]float64{pureUs}, mpi.OpMax, root)
	if err != nil {
		return Report{}, false, err
	}
	if comm.Rank() != root {
		return Report{}, false, nil
	}
	return Summarize(sums, comm.Size(), lo[0], hi[0]), true, nil
}
