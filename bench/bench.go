package bench

import (
	"syscall"
	"time"

	"github.com/lightstep/commbench/common"
)

// GetSelfUsage returns wall clock plus the user and system CPU time
// consumed by this process so far.
func GetSelfUsage() (common.Timing, error) {
	var self syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &self); err != nil {
		return common.Timing{}, err
	}
	return common.Timing{
		Wall: common.Time(float64(time.Now().UnixNano()) / 1e9),
		User: common.Timeval(self.Utime),
		Sys:  common.Timeval(self.Stime)}, nil
}

// FillHeader copies the machine description into h.
func FillHeader(h *common.Header) {
	mi := ProcessMachineInfo()
	h.CPUModel = mi.CPUModelName
	h.CPUMHz = mi.CPUMHz
	h.CPUCores = mi.CPUCores
	h.MemBytes = mi.MemBytes
	h.MemLockedBytes = mi.MemLocked
	h.MaxMapCount = mi.MaxMapCount
}
