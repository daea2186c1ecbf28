// Package tracing sets up the opentracing tracer the engine reports its
// phases to.
package tracing

import (
	"context"
	"time"

	"github.com/golang/glog"
	lightstep "github.com/lightstep/lightstep-tracer-go"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/lightstep/commbench/config"
)

const (
	reportingPeriod  = 500 * time.Millisecond
	maxBufferedSpans = 10000
	closeTimeout     = 5 * time.Second

	componentName = "commbench"
)

// NewTracer returns a lightstep tracer when an access token is
// configured and a no-op tracer otherwise.
func NewTracer(cfg config.Tracing, benchmark string, rank int) opentracing.Tracer {
	if cfg.AccessToken == "" {
		return opentracing.NoopTracer{}
	}
	glog.V(1).Infof("rank %d: tracing to %s:%d", rank, cfg.CollectorHost, cfg.CollectorPort)
	return lightstep.NewTracer(lightstep.Options{
		AccessToken: cfg.AccessToken,
		Tags: map[string]interface{}{
			lightstep.ComponentNameKey: componentName,
			"benchmark":                benchmark,
			"rank":                     rank,
		},
		Collector: lightstep.Endpoint{
			Host:      cfg.CollectorHost,
			Port:      cfg.CollectorPort,
			Plaintext: cfg.Plaintext,
		},
		UseHttp:          true,
		ReportingPeriod:  reportingPeriod,
		MaxBufferedSpans: maxBufferedSpans,
	})
}

// Close flushes a lightstep tracer. Other tracers are left alone.
func Close(tracer opentracing.Tracer) {
	lt, ok := tracer.(lightstep.Tracer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	lt.Close(ctx)
}

// StartSpan starts a span named op as a child of parent, if any.
func StartSpan(tracer opentracing.Tracer, parent opentracing.Span, op string) opentracing.Span {
	if parent == nil {
		return tracer.StartSpan(op)
	}
	return tracer.StartSpan(op, opentracing.ChildOf(parent.Context()))
}
