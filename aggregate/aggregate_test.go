package aggregate

import (
	"fmt"
	"math"
	"testing"

	"github.com/lightstep/commbench/mpi"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLocal(t *testing.T) {
	var l Local
	l.Add(Sample{Total: 1, Compute: 0.5, Init: 0.1, Wait: 0.2, Test: 0.05})
	l.Add(Sample{Total: 3, Compute: 1.5, Init: 0.1, Wait: 0.2, Test: 0.05})
	if l.Count() != 2 {
		t.Errorf("count %d", l.Count())
	}
	if s := l.Sums(); !near(s.Total, 4) || !near(s.Compute, 2) || !near(s.Test, 0.1) {
		t.Errorf("sums %+v", s)
	}
	if !near(l.Spread(), 1) {
		t.Errorf("spread %v, want 1", l.Spread())
	}
	var empty Local
	if empty.Spread() != 0 {
		t.Errorf("empty spread %v", empty.Spread())
	}
}

func TestOverlapAndEfficiency(t *testing.T) {
	for _, tc := range []struct {
		overall, compute, test, pure float64
		overlap, efficiency          float64
	}{
		// Communication fully hidden behind compute.
		{overall: 100, compute: 100, test: 0, pure: 50, overlap: 100, efficiency: 100},
		// No overlap at all.
		{overall: 150, compute: 100, test: 0, pure: 50, overlap: 100 * 100.0 / 150, efficiency: 0},
		// Half hidden.
		{overall: 125, compute: 100, test: 0, pure: 50, overlap: 80, efficiency: 50},
		// Worse than serial clamps at zero.
		{overall: 300, compute: 100, test: 0, pure: 50, overlap: 100.0 / 3, efficiency: 0},
		// Test time counts as communication.
		{overall: 125, compute: 110, test: 10, pure: 50, overlap: 88, efficiency: 50},
		{overall: 0, compute: 0, test: 0, pure: 0, overlap: 0, efficiency: 0},
	} {
		if got := Overlap(tc.compute, tc.overall); !near(got, tc.overlap) {
			t.Errorf("Overlap(%v, %v) = %v, want %v", tc.compute, tc.overall, got, tc.overlap)
		}
		if got := Efficiency(tc.overall, tc.compute, tc.test, tc.pure); !near(got, tc.efficiency) {
			t.Errorf("Efficiency(%+v) = %v, want %v", tc, got, tc.efficiency)
		}
	}
}

func TestReduce(t *testing.T) {
	const ranks, iterations = 4, 10
	reports := make([]Report, ranks)
	roots := make([]bool, ranks)
	errs := mpi.NewLocalWorld(ranks).Run(func(c mpi.Comm) error {
		var l Local
		// Rank r spends (r+1)ms per iteration overall and half of
		// that computing.
		per := float64(c.Rank()+1) * 1e-3
		for i := 0; i < iterations; i++ {
			l.Add(Sample{Total: per, Compute: per / 2, Wait: per / 4, Init: per / 8})
		}
		pure := float64(c.Rank()+1) * 100
		r, ok, err := Reduce(c, &l, iterations, pure)
		if err != nil {
			return err
		}
		reports[c.Rank()], roots[c.Rank()] = r, ok
		return nil
	})
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	for rank := 1; rank < ranks; rank++ {
		if roots[rank] {
			t.Errorf("rank %d got a report", rank)
		}
	}
	if !roots[0] {
		t.Fatal("root got no report")
	}
	r := reports[0]
	// mean of 1000, 2000, 3000, 4000 µs
	for name, pair := range map[string][2]float64{
		"overall": {r.OverallUs, 2500},
		"compute": {r.ComputeUs, 1250},
		"wait":    {r.WaitUs, 625},
		"init":    {r.InitUs, 312.5},
		"pure":    {r.PureCommUs, 250},
		"min":     {r.MinCommUs, 100},
		"max":     {r.MaxCommUs, 400},
		"overlap": {r.OverlapPct, 50},
	} {
		if !near(pair[0], pair[1]) {
			t.Errorf("%s = %v, want %v", name, pair[0], pair[1])
		}
	}
}

func TestSummarizeZeroRanks(t *testing.T) {
	r := Summarize(make([]float64, nValues), 0, 0, 0)
	if r != (Report{}) {
		t.Errorf("zero ranks: %s", fmt.Sprint(r))
	}
}
