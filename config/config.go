// Package config builds the immutable benchmark options from an ini file
// and BENCHMARK_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/dtype"
	"github.com/lightstep/commbench/layout"
)

type Kind int

const (
	Collective Kind = iota
	Latency
	MultiLatency
)

func (k Kind) PointToPoint() bool {
	return k != Collective
}

const (
	DefaultLargeMessageSize = 8192
	DefaultMaxMemLimit      = 1 << 30

	MaxDTBlockSize  = 1 << 16
	MaxDTStrideSize = 1 << 20

	TransportLocal = "local"
	TransportGRPC  = "grpc"

	PatternCyclic   = "cyclic"
	PatternConstant = "constant"
)

type (
	Calibration struct {
		TimeSlice       common.Duration
		Rounds          int
		Tolerance       float64
		MinCalibrations int
		MaxCalibrations int
	}

	Report struct {
		Full        bool
		JSONFile    string
		SQLiteFile  string
		PostgresURL string
		KafkaBroker string
		KafkaTopic  string
		Bucket      string
		GraphDir    string
	}

	Tracing struct {
		AccessToken   string
		CollectorHost string
		CollectorPort int
		Plaintext     bool
	}

	// Options is read once at startup and passed by value afterwards.
	Options struct {
		Kind  Kind
		Title string

		MinMessageSize   int
		MaxMessageSize   int
		LargeMessageSize int

		Iterations      int
		IterationsLarge int
		Skip            int
		SkipLarge       int

		DTBlockSize  int
		DTStrideSize int

		WarmupValidation    int
		Validate            bool
		ValidationTolerance float64
		Pattern             string
		Datatype            string

		Accel       buffer.Kind
		Graph       bool
		NumPolls    int
		MaxMemLimit int

		Ranks     int
		Transport string

		Calibration Calibration
		Report      Report
		Tracing     Tracing
	}
)

// Defaults returns the options used when nothing is configured.
func Defaults(kind Kind) Options {
	o := Options{
		Kind:                kind,
		Title:               "untitled",
		LargeMessageSize:    DefaultLargeMessageSize,
		WarmupValidation:    5,
		ValidationTolerance: 1e-4,
		Pattern:             PatternCyclic,
		Datatype:            "float",
		Accel:               buffer.Host,
		MaxMemLimit:         DefaultMaxMemLimit,
		Transport:           TransportLocal,
		Calibration: Calibration{
			TimeSlice:       common.Duration(10 * time.Millisecond),
			Rounds:          10,
			Tolerance:       0.2,
			MinCalibrations: 1,
			MaxCalibrations: 4,
		},
		Tracing: Tracing{
			CollectorHost: "ingest.lightstep.com",
			CollectorPort: 443,
		},
	}
	switch kind {
	case Collective:
		o.MinMessageSize = 4
		o.MaxMessageSize = 1 << 20
		o.Iterations, o.Skip = 1000, 200
		o.IterationsLarge, o.SkipLarge = 100, 10
		o.Ranks = 4
	default:
		o.MinMessageSize = 0
		o.MaxMessageSize = 1 << 22
		o.Iterations, o.Skip = 10000, 100
		o.IterationsLarge, o.SkipLarge = 1000, 10
		o.DTBlockSize, o.DTStrideSize = 4, 8
		o.Ranks = 2
		if kind == MultiLatency {
			o.Ranks = 4
		}
	}
	return o
}

func (o Options) ElementType() dtype.Type {
	t, err := dtype.Parse(o.Datatype)
	if err != nil {
		return dtype.Float32
	}
	return t
}

func configErr(format string, args ...interface{}) error {
	return common.Errorf(common.ConfigurationError, "config", format, args...)
}

// Check validates every field. It does not know the rank count of the
// running world; benchmarks check that themselves.
func (o Options) Check() error {
	switch {
	case o.MinMessageSize < 0:
		return configErr("min message size %d < 0", o.MinMessageSize)
	case o.MaxMessageSize < 1 || o.MaxMessageSize < o.MinMessageSize:
		return configErr("max message size %d is below min %d or 1", o.MaxMessageSize, o.MinMessageSize)
	case o.LargeMessageSize < 0:
		return configErr("large message size %d < 0", o.LargeMessageSize)
	case o.Iterations < 1 || o.IterationsLarge < 1:
		return configErr("iterations %d/%d must be positive", o.Iterations, o.IterationsLarge)
	case o.Skip < 0 || o.SkipLarge < 0:
		return configErr("skip %d/%d must not be negative", o.Skip, o.SkipLarge)
	case o.WarmupValidation < 0:
		return configErr("warmup validation %d < 0", o.WarmupValidation)
	case o.ValidationTolerance < 0:
		return configErr("validation tolerance %v < 0", o.ValidationTolerance)
	case o.NumPolls < 0:
		return configErr("num polls %d < 0", o.NumPolls)
	case o.Ranks < 1:
		return configErr("ranks %d < 1", o.Ranks)
	case o.MaxMemLimit < 1:
		return configErr("max memory limit %d < 1", o.MaxMemLimit)
	case o.Calibration.Rounds < 1 || o.Calibration.TimeSlice <= 0:
		return configErr("calibration needs positive rounds and time slice")
	case o.Calibration.MinCalibrations < 1 || o.Calibration.MaxCalibrations < o.Calibration.MinCalibrations:
		return configErr("calibration counts %d/%d", o.Calibration.MinCalibrations, o.Calibration.MaxCalibrations)
	}
	if o.Transport != TransportLocal && o.Transport != TransportGRPC {
		return configErr("unknown transport %q", o.Transport)
	}
	if o.Pattern != PatternCyclic && o.Pattern != PatternConstant {
		return configErr("unknown fill pattern %q", o.Pattern)
	}
	if _, err := dtype.Parse(o.Datatype); err != nil {
		return common.Wrap(common.ConfigurationError, "config", err)
	}
	if o.Report.KafkaBroker != "" && o.Report.KafkaTopic == "" {
		return configErr("kafka broker %q without a topic", o.Report.KafkaBroker)
	}
	if o.Kind.PointToPoint() {
		if err := layout.CheckParams(o.DTBlockSize, o.DTStrideSize, MaxDTBlockSize, MaxDTStrideSize); err != nil {
			return err
		}
	}
	return nil
}

// LimitToMemory returns o with the maximum message size reduced so that
// one buffer per rank fits in the memory limit.
func (o Options) LimitToMemory(ranks int) Options {
	if ranks < 1 {
		return o
	}
	if o.MaxMessageSize*ranks > o.MaxMemLimit {
		limited := o.MaxMemLimit / ranks
		glog.Warningf("max message size %d is too large for %d ranks, using %d",
			o.MaxMessageSize, ranks, limited)
		o.MaxMessageSize = limited
	}
	return o
}

// MinimumFor returns the first message size of the series. Layout
// benchmarks never start below one block.
func (o Options) MinimumFor() int {
	if o.Kind.PointToPoint() && o.DTBlockSize > o.MinMessageSize {
		return o.DTBlockSize
	}
	return o.MinMessageSize
}

func (o Options) String() string {
	return fmt.Sprintf("sizes [%d, %d] iterations %d/%d skip %d/%d ranks %d transport %s",
		o.MinMessageSize, o.MaxMessageSize, o.Iterations, o.IterationsLarge,
		o.Skip, o.SkipLarge, o.Ranks, o.Transport)
}
