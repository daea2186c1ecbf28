// Package compute provides the calibrated busy loop the overlap pass runs
// while a non-blocking collective is in flight.
package compute

import (
	"math"
	"time"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/golang/glog"

	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/env"
)

const (
	// The first trial is assumed to be fast; it is multiplied by ten
	// until one trial lasts at least a time slice.
	initialTrial = int64(1000)
	maxTrial     = int64(1e10)

	warmupRatio = 0.1

	// Used when the regression cannot produce a rate. It is also the
	// least work a positive target gets after such a calibration.
	fallbackIterations = 1000
)

// DurationSource reports a monotonic time in seconds.
type DurationSource interface {
	Now() float64
}

type ClockFunc func() float64

func (f ClockFunc) Now() float64 {
	return f()
}

// WallClock counts seconds since its creation.
func WallClock() DurationSource {
	epoch := time.Now()
	return ClockFunc(func() float64 {
		return time.Since(epoch).Seconds()
	})
}

// Kernel performs n units of CPU work.
type Kernel interface {
	Run(n int64)
}

// BusyKernel multiplies floats and keeps the result so the loop cannot be
// removed by the compiler.
type BusyKernel struct {
	Result float64
}

func (k *BusyKernel) Run(n int64) {
	x := 1.12563
	for i := int64(0); i < n; i++ {
		x *= 1.0000001
		if x > 1e6 {
			x = 1.12563
		}
	}
	k.Result = x
}

// Tester is polled between chunks of polled work.
type Tester interface {
	Test() (bool, error)
}

// Calibrator converts a duration into kernel work.
type Calibrator struct {
	clock  DurationSource
	kernel Kernel
	cfg    config.Calibration
	polls  int

	// iterations per second
	rate         float64
	fallback     bool
	calibrations int
}

func New(clock DurationSource, kernel Kernel, cfg config.Calibration, polls int) *Calibrator {
	return &Calibrator{
		clock:  clock,
		kernel: kernel,
		cfg:    cfg,
		polls:  polls,
	}
}

func (c *Calibrator) Rate() float64 {
	return c.rate
}

func (c *Calibrator) Calibrations() int {
	return c.calibrations
}

func (c *Calibrator) time(n int64) float64 {
	start := c.clock.Now()
	c.kernel.Run(n)
	return c.clock.Now() - start
}

// Calibrate measures the kernel rate. It retries with a doubled time
// slice while the sanity check fails, up to MaxCalibrations times, and
// keeps the last estimate either way.
func (c *Calibrator) Calibrate() {
	slice := c.cfg.TimeSlice.Seconds()
	for c.calibrations < c.cfg.MaxCalibrations {
		if c.calibrations >= c.cfg.MinCalibrations {
			slice *= 2
		}
		c.calibrations++
		env.Print("Calibration starting, time slice ", slice, " rounds ", c.cfg.Rounds)
		c.estimate(slice)
		if c.sanityCheck(slice) && c.calibrations >= c.cfg.MinCalibrations {
			return
		}
	}
}

func (c *Calibrator) estimate(slice float64) {
	n := initialTrial
	for n < maxTrial && c.time(n) < slice {
		n *= 10
	}

	warmup := int(float64(c.cfg.Rounds) * warmupRatio)
	for i := 0; i < warmup; i++ {
		c.time(n)
	}

	var x, y []float64
	for i := 0; i < c.cfg.Rounds; i++ {
		for _, m := range []int64{n, 2 * n} {
			x = append(x, float64(m))
			y = append(y, c.time(m))
		}
	}
	slope, intercept, rsq, _, _, _ := stats.LinearRegression(x, y)
	if slope <= 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		glog.Warningf("calibration slope %v is unusable, falling back to %d iterations per slice",
			slope, fallbackIterations)
		c.rate = fallbackIterations / slice
		c.fallback = true
		return
	}
	c.rate = 1 / slope
	c.fallback = false
	glog.V(1).Infof("calibration: trial %d, %.3g iterations/s, intercept %.3gs, r² %.3f",
		n, c.rate, intercept, rsq)
}

func (c *Calibrator) sanityCheck(slice float64) bool {
	elapsed := c.Run(slice)
	off := math.Abs(elapsed-slice) / slice
	if off > c.cfg.Tolerance {
		glog.Warningf("CPU work not well calibrated (or insufficient CPU): measured %.3gs expected %.3gs off by %.1f%%",
			elapsed, slice, off*100)
		return false
	}
	return true
}

func (c *Calibrator) iterations(target float64) int64 {
	if target <= 0 || c.rate <= 0 {
		return 0
	}
	n := int64(target * c.rate)
	if c.fallback && n < fallbackIterations {
		n = fallbackIterations
	}
	return n
}

// Run spins for about target seconds and returns the measured time.
func (c *Calibrator) Run(target float64) float64 {
	return c.time(c.iterations(target))
}

// RunPolling is Run split into c.polls chunks with req.Test in between.
// It returns the elapsed time and the part of it spent testing.
func (c *Calibrator) RunPolling(target float64, req Tester) (elapsed, testTime float64, err error) {
	if c.polls <= 0 || req == nil {
		return c.Run(target), 0, nil
	}
	n := c.iterations(target)
	chunk := n / int64(c.polls)
	start := c.clock.Now()
	for i := 0; i < c.polls; i++ {
		work := chunk
		if i == c.polls-1 {
			work = n - chunk*int64(c.polls-1)
		}
		c.kernel.Run(work)
		t := c.clock.Now()
		_, err = req.Test()
		testTime += c.clock.Now() - t
		if err != nil {
			break
		}
	}
	return c.clock.Now() - start, testTime, err
}
