package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightstep/commbench/common"
)

// Graph writes one data file per message size with the per-iteration
// latencies of the overlap pass.
type Graph struct {
	dir string
}

func NewGraph(dir string) (*Graph, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, reportErr("graph", err)
	}
	return &Graph{dir: dir}, nil
}

func (g *Graph) Path(benchmark string, size int) string {
	return filepath.Join(g.dir, fmt.Sprintf("%s-%d.dat", benchmark, size))
}

func (g *Graph) Samples(s common.SampleSeries) error {
	f, err := os.Create(g.Path(s.Benchmark, s.Size))
	if err != nil {
		return reportErr("graph", err)
	}
	w := bufio.NewWriter(f)
	for i, v := range s.Samples {
		fmt.Fprintf(w, "%d %.2f\n", i+1, v)
	}
	st := append(common.Stats(nil), s.Samples...)
	fmt.Fprintf(w, "# avg %.2f %v\n", s.AvgUs, st.Summary(common.C95))
	err = w.Flush()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return reportErr("graph", err)
}

func (g *Graph) Preamble(common.Header) error             { return nil }
func (g *Graph) Collective(common.CollectiveResult) error { return nil }
func (g *Graph) PointToPoint(common.PointResult) error    { return nil }
func (g *Graph) Close() error                             { return nil }
