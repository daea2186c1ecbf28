package common

type (
	// Header describes one benchmark run. It is emitted once by the
	// root rank before any result.
	Header struct {
		Benchmark string
		Title     string
		Ranks     int
		Datatype  string
		Validate  bool
		Full      bool
		Graph     bool

		CPUModel string
		CPUMHz   float64
		CPUCores int
		MemBytes uint64

		// Page-locked memory and the mapping limit bound what the
		// device buffer provider can pin.
		MemLockedBytes uint64
		MaxMapCount    uint64

		StartedUnixNanos int64
	}

	// CollectiveResult is one reported message size of a non-blocking
	// collective. Times are averages in microseconds.
	CollectiveResult struct {
		Benchmark  string
		Title      string
		Size       int // bytes
		OverallUs  float64
		ComputeUs  float64
		PureCommUs float64
		MinCommUs  float64
		MaxCommUs  float64
		InitUs     float64
		TestUs     float64
		WaitUs     float64
		OverlapPct float64
		Efficiency float64
		Validated  bool
		Errors     int
	}

	// PointResult is one reported message size of a layout ping-pong.
	PointResult struct {
		Benchmark    string
		Title        string
		Size         int
		Block        int
		Stride       int
		AdjustedSize int
		LatencyUs    float64
		Validated    bool
		Errors       int
	}

	// SampleSeries carries the per-iteration latencies of one size.
	SampleSeries struct {
		Benchmark string
		Title     string
		Size      int
		AvgUs     float64
		Samples   []float64
	}

	// Record is the tagged union stored by JSON-based sinks.
	Record struct {
		Kind       string
		Header     *Header           `json:",omitempty"`
		Collective *CollectiveResult `json:",omitempty"`
		Point      *PointResult      `json:",omitempty"`
		Samples    *SampleSeries     `json:",omitempty"`
	}
)

const (
	RecordHeader     = "header"
	RecordCollective = "collective"
	RecordPoint      = "pt2pt"
	RecordSamples    = "samples"
)

// Passed reports whether validation ran and found no error.
func (r CollectiveResult) Passed() bool {
	return r.Validated && r.Errors == 0
}

// Key returns the benchmark and size of a result record. It returns
// false for headers and sample series.
func (r Record) Key() (string, int, bool) {
	switch {
	case r.Collective != nil:
		return r.Collective.Benchmark, r.Collective.Size, true
	case r.Point != nil:
		return r.Point.Benchmark, r.Point.Size, true
	}
	return "", 0, false
}

// Latency returns the headline latency of a result record.
func (r Record) Latency() float64 {
	switch {
	case r.Collective != nil:
		return r.Collective.OverallUs
	case r.Point != nil:
		return r.Point.LatencyUs
	}
	return 0
}
