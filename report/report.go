// Package report delivers benchmark results to the configured sinks.
// Only the root rank opens sinks.
package report

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"

	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/config"
)

type Sink interface {
	Preamble(h common.Header) error
	Collective(r common.CollectiveResult) error
	PointToPoint(r common.PointResult) error
	Samples(s common.SampleSeries) error
	Close() error
}

func reportErr(op string, err error) error {
	return common.Wrap(common.ReportError, op, err)
}

// Multi fans every call out to all sinks. A failing sink does not stop
// the others.
type Multi []Sink

func (m Multi) each(op string, fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return reportErr(op, errors.Join(errs...))
}

func (m Multi) Preamble(h common.Header) error {
	return m.each("preamble", func(s Sink) error { return s.Preamble(h) })
}

func (m Multi) Collective(r common.CollectiveResult) error {
	return m.each("collective", func(s Sink) error { return s.Collective(r) })
}

func (m Multi) PointToPoint(r common.PointResult) error {
	return m.each("pt2pt", func(s Sink) error { return s.PointToPoint(r) })
}

func (m Multi) Samples(series common.SampleSeries) error {
	return m.each("samples", func(s Sink) error { return s.Samples(series) })
}

func (m Multi) Close() error {
	return m.each("close", func(s Sink) error { return s.Close() })
}

// Open builds the text sink on out plus every sink the report options
// ask for.
func Open(ctx context.Context, opts config.Options, out io.Writer) (Sink, error) {
	sinks := Multi{NewText(out, opts.Report.Full, opts.Validate)}
	fail := func(err error) (Sink, error) {
		if cerr := sinks.Close(); cerr != nil {
			glog.Warningf("closing sinks: %v", cerr)
		}
		return nil, reportErr("open", err)
	}
	r := opts.Report
	if r.JSONFile != "" {
		s, err := NewJSONFile(r.JSONFile)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if r.SQLiteFile != "" {
		s, err := NewSQLite(ctx, r.SQLiteFile)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if r.PostgresURL != "" {
		s, err := NewPostgres(ctx, r.PostgresURL)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if r.KafkaBroker != "" {
		s, err := NewKafka(ctx, r.KafkaBroker, r.KafkaTopic)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if r.Bucket != "" {
		s, err := NewGCS(ctx, r.Bucket)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if opts.Graph {
		s, err := NewGraph(r.GraphDir)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
