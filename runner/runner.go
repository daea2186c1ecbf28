// Package runner wires configuration, substrate, sinks and engine into
// the benchmark binaries and maps failures to exit codes.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/lightstep/commbench/bench"
	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/compute"
	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/engine"
	"github.com/lightstep/commbench/env"
	"github.com/lightstep/commbench/launch"
	"github.com/lightstep/commbench/mpi"
	"github.com/lightstep/commbench/report"
	"github.com/lightstep/commbench/tracing"
)

const (
	ExitOK            = 0
	ExitValidation    = 1
	ExitConfiguration = 2
	ExitResource      = 3
	ExitCommunication = 4
	ExitReport        = 5

	deliveryTimeout = time.Minute
)

var exitCodes = map[common.ErrorKind]int{
	common.NoError:            ExitOK,
	common.ValidationError:    ExitValidation,
	common.ConfigurationError: ExitConfiguration,
	common.ResourceError:      ExitResource,
	common.CommunicationError: ExitCommunication,
	common.ReportError:        ExitReport,
}

func ExitCode(err error) int {
	return exitCodes[common.KindOf(err)]
}

func benchmarkName(kind config.Kind) string {
	switch kind {
	case config.Latency:
		return engine.NameLatencyDT
	case config.MultiLatency:
		return engine.NameMultiLatDT
	}
	return engine.NameIreduceScatter
}

// Main runs the benchmark of the given kind and returns the process exit
// code.
func Main(kind config.Kind) int {
	flag.Parse()
	defer glog.Flush()

	opts, err := config.FromEnv(kind)
	if err != nil {
		glog.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		return ExitCode(err)
	}
	env.Print("options: ", opts)

	r := &Runner{Options: opts, Stdout: os.Stdout, Stderr: os.Stderr}
	if opts.Transport == config.TransportGRPC {
		if env.TestRank == "" {
			return r.launch()
		}
		return r.child()
	}
	return ExitCode(r.Local())
}

// Runner runs every rank of one benchmark.
type Runner struct {
	Options config.Options
	Stdout  io.Writer
	Stderr  io.Writer

	// Clock and Compute replace the wall clock and calibrated compute
	// when set.
	Clock   func(rank int) compute.DurationSource
	Compute func(rank int) engine.Compute
}

func (r *Runner) launch() int {
	l, err := launch.Self(r.Stdout, r.Stderr)
	if err != nil {
		glog.Errorf("%v", err)
		return ExitCode(err)
	}
	code, err := l.Run(r.Options.Ranks)
	if err != nil {
		glog.Errorf("%v", err)
		if code == ExitOK {
			code = ExitCode(err)
		}
	}
	return code
}

func (r *Runner) child() int {
	rank, err := strconv.Atoi(env.TestRank)
	peers := launch.ParsePeers(env.TestPeers)
	if err != nil || len(peers) == 0 {
		err = common.Errorf(common.ConfigurationError, "env", "bad rank %q or peers %q", env.TestRank, env.TestPeers)
		glog.Errorf("%v", err)
		return ExitCode(err)
	}
	comm, err := mpi.DialGRPC(rank, peers, deliveryTimeout)
	if err != nil {
		glog.Errorf("%v", err)
		return ExitCode(err)
	}
	r.Options = r.Options.LimitToMemory(len(peers))
	return ExitCode(r.Rank(comm))
}

// Local runs Options.Ranks ranks as goroutines of this process and
// returns the root's error, or the first error of another rank.
func (r *Runner) Local() error {
	world := mpi.NewLocalWorld(r.Options.Ranks)
	r.Options = r.Options.LimitToMemory(world.Size())
	errs := world.Run(r.Rank)
	if errs[0] != nil {
		return errs[0]
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) clock(comm mpi.Comm) compute.DurationSource {
	if r.Clock != nil {
		return r.Clock(comm.Rank())
	}
	return compute.ClockFunc(comm.Wtime)
}

func (r *Runner) compute(comm mpi.Comm) engine.Compute {
	if r.Compute != nil {
		return r.Compute(comm.Rank())
	}
	opts := r.Options
	c := compute.New(compute.WallClock(), &compute.BusyKernel{}, opts.Calibration, opts.NumPolls)
	if opts.Kind == config.Collective {
		c.Calibrate()
		glog.V(1).Infof("rank %d: compute rate %.3g iterations/s after %d calibrations",
			comm.Rank(), c.Rate(), c.Calibrations())
	}
	return c
}

func (r *Runner) header(ranks int) common.Header {
	h := common.Header{
		Benchmark:        benchmarkName(r.Options.Kind),
		Title:            r.Options.Title,
		Ranks:            ranks,
		Datatype:         r.Options.Datatype,
		Validate:         r.Options.Validate,
		Full:             r.Options.Report.Full,
		Graph:            r.Options.Graph,
		StartedUnixNanos: time.Now().UnixNano(),
	}
	if r.Options.Kind.PointToPoint() {
		h.Datatype = "char"
	}
	bench.FillHeader(&h)
	return h
}

// benchmark is implemented by every engine benchmark.
type benchmark interface {
	Run() (engine.Outcome, error)
}

func (r *Runner) build(s engine.Setup) (benchmark, error) {
	switch r.Options.Kind {
	case config.Latency:
		return engine.NewLatency(r.Options, s)
	case config.MultiLatency:
		return engine.NewMultiLatency(r.Options, s)
	}
	return engine.NewCollective(r.Options, s)
}

// Rank runs the benchmark on one rank. Substrate and resource failures
// abort the world; everything else finalizes it.
func (r *Runner) Rank(comm mpi.Comm) (err error) {
	opts := r.Options
	name := benchmarkName(opts.Kind)
	rank := comm.Rank()

	if err := engine.CheckOptions(opts, comm.Size()); err != nil {
		if rank == 0 {
			var ce *common.Error
			if errors.As(err, &ce) {
				fmt.Fprintln(r.Stderr, ce.Err)
			}
		}
		return r.finish(comm, err)
	}

	tracer := tracing.NewTracer(opts.Tracing, name, rank)
	defer tracing.Close(tracer)

	setup := engine.Setup{
		Comm:     comm,
		Provider: buffer.NewProvider(opts.Accel, opts.MaxMemLimit),
		Compute:  r.compute(comm),
		Clock:    r.clock(comm),
		Tracer:   tracer,
		Title:    opts.Title,
	}
	if rank == 0 {
		sink, err := report.Open(context.Background(), opts, r.Stdout)
		if err != nil {
			glog.Errorf("%v", err)
			comm.Abort(ExitCode(err))
			return err
		}
		defer func() {
			if cerr := sink.Close(); err == nil {
				err = cerr
			}
		}()
		if err := sink.Preamble(r.header(comm.Size())); err != nil {
			comm.Abort(ExitCode(err))
			return err
		}
		setup.Sink = sink
	}

	b, err := r.build(setup)
	if err != nil {
		return r.finish(comm, err)
	}
	start, _ := bench.GetSelfUsage()
	out, err := b.Run()
	if err != nil {
		glog.Errorf("rank %d: %v", rank, err)
		comm.Abort(ExitCode(err))
		return err
	}
	if err := out.Err(); err != nil {
		if rank == 0 {
			fmt.Fprintf(r.Stdout, "DATA VALIDATION ERROR: %s exited with status %d on message size %d.\n",
				name, ExitValidation, out.FailedSize)
		}
		return r.finish(comm, err)
	}
	if end, uerr := bench.GetSelfUsage(); uerr == nil && rank == 0 {
		if per, ok := perSize(start, end, out.Sizes); ok {
			glog.V(1).Infof("%s: %d sizes, per size %v", name, out.Sizes, per)
		}
	}
	return r.finish(comm, nil)
}

// perSize is the resource usage between start and end averaged over the
// measured sizes.
func perSize(start, end common.Timing, sizes int) (common.Timing, bool) {
	if sizes <= 0 {
		return common.Timing{}, false
	}
	return end.Sub(start).Div(float64(sizes)), true
}

// finish finalizes the substrate and keeps the first error.
func (r *Runner) finish(comm mpi.Comm, err error) error {
	if ferr := comm.Finalize(); ferr != nil {
		glog.Errorf("rank %d: finalize: %v", comm.Rank(), ferr)
		if err == nil {
			err = ferr
		}
	}
	return err
}
