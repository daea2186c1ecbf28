package report

import (
	"fmt"
	"io"

	"github.com/lightstep/commbench/common"
)

const (
	sizeWidth  = 10
	fieldWidth = 18
	precision  = 2
)

var descriptions = map[string]string{
	"osu_ireduce_scatter": "OSU MPI Non-blocking Reduce_scatter Latency Test",
	"osu_latency_dt":      "OSU MPI Latency Test (Vector Datatype)",
	"osu_multi_lat_dt":    "OSU MPI Multi Latency Test (Vector Datatype)",
}

// Text prints the classic column layout.
type Text struct {
	w        io.Writer
	full     bool
	validate bool
}

func NewText(w io.Writer, full, validate bool) *Text {
	return &Text{w: w, full: full, validate: validate}
}

func (t *Text) columns(names ...string) {
	for _, n := range names {
		fmt.Fprintf(t.w, "%*s", fieldWidth, n)
	}
}

func (t *Text) value(v float64) {
	fmt.Fprintf(t.w, "%*.*f", fieldWidth, precision, v)
}

func (t *Text) verdict(validated bool, errors int) {
	if !t.validate {
		return
	}
	v := "Pass"
	if !validated || errors != 0 {
		v = "Fail"
	}
	fmt.Fprintf(t.w, "%*s", fieldWidth, v)
}

func (t *Text) Preamble(h common.Header) error {
	desc, ok := descriptions[h.Benchmark]
	if !ok {
		desc = h.Benchmark
	}
	fmt.Fprintf(t.w, "# %s\n", desc)
	fmt.Fprintf(t.w, "# Ranks: %d, datatype: %s, title: %s\n", h.Ranks, h.Datatype, h.Title)
	if h.CPUModel != "" {
		fmt.Fprintf(t.w, "# CPU: %s (%d cores, %.0f MHz)\n", h.CPUModel, h.CPUCores, h.CPUMHz)
	}
	if h.MemBytes > 0 {
		fmt.Fprintf(t.w, "# Memory: %d MiB, %d KiB locked, max map count %d\n",
			h.MemBytes>>20, h.MemLockedBytes>>10, h.MaxMapCount)
	}

	if h.Benchmark == "osu_ireduce_scatter" {
		fmt.Fprintf(t.w, "# Overall = Coll. Init + Compute + MPI_Test + MPI_Wait\n\n")
		fmt.Fprintf(t.w, "%-*s", sizeWidth, "# Size")
		t.columns("Overall(us)")
		if t.full {
			t.columns("Compute(us)", "Coll. Init(us)", "MPI_Test(us)", "MPI_Wait(us)",
				"Pure Comm.(us)", "Min Comm.(us)", "Max Comm.(us)")
		} else {
			t.columns("Compute(us)", "Pure Comm.(us)")
		}
		t.columns("Overlap(%)", "Efficiency(%)")
	} else {
		fmt.Fprintf(t.w, "%-*s%-*s%-*s", sizeWidth, "# Size", sizeWidth, "Block", sizeWidth, "Stride")
		t.columns("Latency (us)")
	}
	if t.validate {
		t.columns("Validation")
	}
	_, err := fmt.Fprintln(t.w)
	return err
}

func (t *Text) Collective(r common.CollectiveResult) error {
	fmt.Fprintf(t.w, "%-*d", sizeWidth, r.Size)
	t.value(r.OverallUs)
	t.value(r.ComputeUs)
	if t.full {
		t.value(r.InitUs)
		t.value(r.TestUs)
		t.value(r.WaitUs)
		t.value(r.PureCommUs)
		t.value(r.MinCommUs)
		t.value(r.MaxCommUs)
	} else {
		t.value(r.PureCommUs)
	}
	t.value(r.OverlapPct)
	t.value(r.Efficiency)
	t.verdict(r.Validated, r.Errors)
	_, err := fmt.Fprintln(t.w)
	return err
}

func (t *Text) PointToPoint(r common.PointResult) error {
	fmt.Fprintf(t.w, "%-*d%-*d%-*d", sizeWidth, r.Size, sizeWidth, r.Block, sizeWidth, r.Stride)
	t.value(r.LatencyUs)
	t.verdict(r.Validated, r.Errors)
	_, err := fmt.Fprintln(t.w)
	return err
}

func (t *Text) Samples(common.SampleSeries) error {
	return nil
}

func (t *Text) Close() error {
	return nil
}
