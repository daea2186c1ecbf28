package bench

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/lightstep/commbench/env"
)

type MachineInfo struct {
	CPUModelName string
	CPUMHz       float64
	CPUCores     int

	MemBytes  uint64
	MemLocked uint64

	MaxMapCount uint64
}

type procFunc map[string]func(string, *MachineInfo)

var (
	processMachineInfo *MachineInfo

	cpuFuncs = procFunc{"processor": func(value string, mi *MachineInfo) {
		if num, err := strconv.Atoi(value); err == nil && mi.CPUCores <= num {
			mi.CPUCores = num + 1
		}
	},
		"model name": func(value string, mi *MachineInfo) {
			mi.CPUModelName = value
		},
		"cpu MHz": func(value string, mi *MachineInfo) {
			if num, err := strconv.ParseFloat(value, 64); err == nil {
				mi.CPUMHz = num
			}
		}}

	memFuncs = procFunc{
		"MemTotal": func(value string, mi *MachineInfo) {
			parseKB(value, &mi.MemBytes)
		},
		"Mlocked": func(value string, mi *MachineInfo) {
			parseKB(value, &mi.MemLocked)
		}}

	processOnce sync.Once
)

func ProcessMachineInfo() *MachineInfo {
	processOnce.Do(func() {
		processMachineInfo = readMachineInfo()
	})
	return processMachineInfo
}

func readMachineInfo() *MachineInfo {
	var mi MachineInfo
	readProcKeyValues("/proc/cpuinfo", &mi, cpuFuncs)
	readProcKeyValues("/proc/meminfo", &mi, memFuncs)
	readProcFileUint64("/proc/sys/vm/max_map_count", &mi.MaxMapCount)
	return &mi
}

func parseKB(value string, p *uint64) {
	if !strings.HasSuffix(value, " kB") {
		return
	}
	if kb, err := strconv.ParseUint(strings.TrimSpace(value[0:len(value)-3]), 10, 64); err == nil {
		*p = kb * 1024
	}
}

func readProcKeyValues(path string, mi *MachineInfo, pf procFunc) {
	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		err = scanProcKeyValues(f, mi, ":", pf)
	}
	if err != nil {
		env.Print("Could not read ", path, ": ", err)
	}
}

func scanProcKeyValues(f io.Reader, mi *MachineInfo, sep string, pf procFunc) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		kv := strings.SplitN(scanner.Text(), sep, 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if kf, ok := pf[key]; ok {
			kf(val, mi)
		}
	}
	return scanner.Err()
}

func readProcFileUint64(path string, p *uint64) {
	b, err := os.ReadFile(path)
	if err != nil {
		env.Print("Could not read ", path, ": ", err)
		return
	}
	if err := parseProcFileUint64(b, p); err != nil {
		env.Print("Could not parse in ", path, ": '", string(b), "': ", err)
	}
}

func parseProcFileUint64(b []byte, p *uint64) error {
	s := strings.TrimSpace(string(b))
	if ui, err := strconv.ParseUint(s, 10, 64); err != nil {
		return err
	} else {
		*p = ui
		return nil
	}
}
