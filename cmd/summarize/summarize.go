package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/env"
	"github.com/lightstep/commbench/report"
)

var (
	bucketName = flag.String("bucket", env.TestStorageBucket, "Bucket holding uploaded runs")
	titleName  = flag.String("title", "", "Title of the runs to summarize, empty lists them")
	outDir     = flag.String("out", "", "Directory for per-benchmark csv files")
)

type key struct {
	benchmark string
	size      int
}

// summarizer groups the headline latency of every result by benchmark
// and message size.
type summarizer struct {
	results map[key]*common.Stats
}

func newSummarizer() *summarizer {
	return &summarizer{results: map[key]*common.Stats{}}
}

func (s *summarizer) add(recs []common.Record) int {
	n := 0
	for _, r := range recs {
		b, size, ok := r.Key()
		if !ok {
			continue
		}
		k := key{b, size}
		st := s.results[k]
		if st == nil {
			st = &common.Stats{}
			s.results[k] = st
		}
		st.Update(r.Latency())
		n++
	}
	return n
}

func (s *summarizer) read(r io.Reader, name string) error {
	recs, err := report.ReadJSON(r)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if s.add(recs) == 0 {
		glog.Warningf("%s: no results", name)
	}
	return nil
}

func (s *summarizer) benchmarks() []string {
	seen := map[string]bool{}
	var names []string
	for k := range s.results {
		if !seen[k.benchmark] {
			seen[k.benchmark] = true
			names = append(names, k.benchmark)
		}
	}
	sort.Strings(names)
	return names
}

func (s *summarizer) sizes(benchmark string) []int {
	var sizes []int
	for k := range s.results {
		if k.benchmark == benchmark {
			sizes = append(sizes, k.size)
		}
	}
	sort.Ints(sizes)
	return sizes
}

func (s *summarizer) summary(benchmark string, size int) common.StatsSummary {
	return s.results[key{benchmark, size}].Summary(common.C95)
}

func (s *summarizer) print(w io.Writer) {
	for _, b := range s.benchmarks() {
		fmt.Fprintf(w, "# %s\n", b)
		for _, size := range s.sizes(b) {
			fmt.Fprintf(w, "%-10d %v\n", size, s.summary(b, size))
		}
	}
}

// csv writes size, mean and the confidence bounds of one benchmark.
func (s *summarizer) csv(benchmark string) []byte {
	var buf bytes.Buffer
	for _, size := range s.sizes(benchmark) {
		ss := s.summary(benchmark, size)
		fmt.Fprintf(&buf, "%d,%.8f,%.8f,%.8f\n", size, ss.Mean, ss.CLow, ss.CHigh)
	}
	return buf.Bytes()
}

// writeCSV writes one csv file per benchmark into dir.
func (s *summarizer) writeCSV(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, b := range s.benchmarks() {
		if err := os.WriteFile(filepath.Join(dir, b+".csv"), s.csv(b), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s *summarizer) readBucket(ctx context.Context) error {
	gcpClient, err := google.DefaultClient(ctx, storage.ScopeReadOnly)
	if err != nil {
		return fmt.Errorf("GCP default client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx, option.WithHTTPClient(gcpClient))
	if err != nil {
		return fmt.Errorf("GCP storage client: %w", err)
	}
	defer storageClient.Close()
	bucket := storageClient.Bucket(*bucketName)

	var query *storage.Query
	if *titleName != "" {
		query = &storage.Query{Prefix: *titleName + "/"}
	}
	olist := bucket.Objects(ctx, query)
	for {
		obj, err := olist.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("GCP bucket error: %w", err)
		}
		if *titleName == "" {
			fmt.Println("Found run", obj.Name)
			continue
		}
		reader, err := bucket.Object(obj.Name).NewReader(ctx)
		if err != nil {
			return err
		}
		err = s.read(reader, obj.Name)
		reader.Close()
		if err != nil {
			return err
		}
	}
}

func (s *summarizer) readFiles(paths []string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		err = s.read(f, p)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--bucket=<...> --title=<...>] [results.json ...]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	s := newSummarizer()
	var err error
	switch {
	case flag.NArg() > 0:
		err = s.readFiles(flag.Args())
	case *bucketName != "":
		err = s.readBucket(context.Background())
	default:
		usage()
	}
	if err != nil {
		glog.Fatal("Couldn't read results: ", err)
	}
	s.print(os.Stdout)
	if *outDir != "" {
		if err := s.writeCSV(*outDir); err != nil {
			glog.Fatal("Couldn't write csv: ", err)
		}
	}
}
