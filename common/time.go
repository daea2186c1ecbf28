package common

import (
	"fmt"
	"syscall"
	"time"
)

type (
	// Time is a duration or timestamp in seconds.
	Time float64

	Timing struct {
		Wall, User, Sys Time
	}
)

func (t Time) Micros() float64 {
	return float64(t) * 1e6
}

func (t Time) Duration() Duration {
	return Duration(t * Time(time.Second))
}

func (t Timing) Sub(s Timing) Timing {
	t.Wall -= s.Wall
	t.User -= s.User
	t.Sys -= s.Sys
	return t
}

func (t Timing) Div(d float64) Timing {
	return Timing{t.Wall / Time(d), t.User / Time(d), t.Sys / Time(d)}
}

func Timeval(t syscall.Timeval) Time {
	return Time(float64(t.Sec) + float64(t.Usec)*1e-6)
}

func (t Time) String() string {
	if t < 10e-9 && t > -10e-9 {
		return fmt.Sprintf("%.3fns", float64(t)*1e9)
	}
	return t.Duration().String()
}

func (ts Timing) String() string {
	return fmt.Sprintf("W: %v U: %v S: %v", ts.Wall, ts.User, ts.Sys)
}
