package common

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type (
	Stats []float64

	StatsSummary struct {
		ZValue
		Count int
		CLow  float64
		CHigh float64
		Mean  float64
		Min   float64
		P25   float64
		P50   float64
		P75   float64
		Max   float64
	}

	ZValue struct {
		C float64
		Z float64
	}
)

var (
	C90 = ZValue{C: 90, Z: 1.645}
	C95 = ZValue{C: 95, Z: 1.96}
	C99 = ZValue{C: 99, Z: 2.58}
)

func (s *Stats) Update(v float64) {
	*s = append(*s, v)
}

func (s Stats) Count() int {
	return len(s)
}

// Summary sorts s in place. An empty series has a zero summary.
func (s Stats) Summary(z ZValue) StatsSummary {
	if len(s) == 0 {
		return StatsSummary{ZValue: z}
	}
	sort.Float64s(s)

	m, std := stat.MeanStdDev(s, nil)
	se := 0.0
	if len(s) > 1 {
		se = stat.StdErr(std, float64(s.Count()))
	}

	return StatsSummary{
		ZValue: z,
		Count:  len(s),
		CLow:   (m - z.Z*se),
		CHigh:  (m + z.Z*se),
		Mean:   m,
		Min:    s[0],
		Max:    s[len(s)-1],
		P25:    s[len(s)/4],
		P50:    s[len(s)/2],
		P75:    s[3*len(s)/4],
	}
}

func (s Stats) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	return stat.Mean(s, nil)
}

func (ss StatsSummary) String() string {
	return fmt.Sprintf("n=%d mean=%.2f [%.2f-%.2f @%v%%] min=%.2f p50=%.2f max=%.2f",
		ss.Count, ss.Mean, ss.CLow, ss.CHigh, ss.C, ss.Min, ss.P50, ss.Max)
}
