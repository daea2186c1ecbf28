package tracing

import (
	"testing"

	lightstep "github.com/lightstep/lightstep-tracer-go"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/lightstep/commbench/config"
)

func TestNoopWithoutToken(t *testing.T) {
	tracer := NewTracer(config.Tracing{}, "osu_latency_dt", 0)
	if _, ok := tracer.(opentracing.NoopTracer); !ok {
		t.Fatalf("got %T, want a no-op tracer", tracer)
	}
	root := StartSpan(tracer, nil, "benchmark")
	child := StartSpan(tracer, root, "size")
	child.SetTag("size", 8)
	child.Finish()
	root.Finish()
	Close(tracer)
}

func TestLightstepWithToken(t *testing.T) {
	cfg := config.Defaults(config.Collective).Tracing
	cfg.AccessToken = "test-token"
	cfg.CollectorHost = "127.0.0.1"
	cfg.CollectorPort = 1
	cfg.Plaintext = true
	tracer := NewTracer(cfg, "osu_ireduce_scatter", 3)
	if _, ok := tracer.(lightstep.Tracer); !ok {
		t.Fatalf("got %T, want a lightstep tracer", tracer)
	}
	StartSpan(tracer, nil, "benchmark").Finish()
	Close(tracer)
}
