package hardware

import (
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"photonix-core/internal/logging"
)

// Info is the resolved, memoized hardware budget for the process.
type Info struct {
	CPUs        int
	MemGB       float64
	IsContainer bool
}

var (
	once   sync.Once
	cached Info
)

// Detect resolves {cpus, memGB, isContainer}. Resolution order: (1) env
// overrides DETECTED_CPU_COUNT/DETECTED_MEMORY_GB, (2) OS probe via
// runtime.NumCPU / a /proc/meminfo read, (3) if containerized, clamp by
// cgroup cpu.max/cpu.cfs_quota_us and memory.max/memory.limit_in_bytes, (4)
// floor of 1 for both. Never fails — every stage has a default. Memoized for
// the process lifetime.
func Detect() Info {
	once.Do(func() {
		cached = detect()
		logging.Info("hardware: cpus=%d memGB=%.2f container=%v", cached.CPUs, cached.MemGB, cached.IsContainer)
	})
	return cached
}

func detect() Info {
	cpus := runtime.NumCPU()
	memGB := probeMemGB()

	isContainer := isContainerized()
	if isContainer {
		if q := cgroupCPUQuota(); q > 0 && q < float64(cpus) {
			cpus = int(math.Ceil(q))
		}
		if m := cgroupMemoryLimitGB(); m > 0 && m < memGB {
			memGB = m
		}
	}

	if v := os.Getenv("DETECTED_CPU_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cpus = n
		} else {
			logging.Warn("hardware: ignoring invalid DETECTED_CPU_COUNT=%q", v)
		}
	}
	if v := os.Getenv("DETECTED_MEMORY_GB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			memGB = f
		} else {
			logging.Warn("hardware: ignoring invalid DETECTED_MEMORY_GB=%q", v)
		}
	}

	if cpus < 1 {
		cpus = 1
	}
	if memGB < 1 {
		memGB = 1
	}

	return Info{CPUs: cpus, MemGB: memGB, IsContainer: isContainer}
}

// isContainerized does a best-effort check for cgroup presence; absence of
// any signal is treated as "not containerized", never an error.
func isContainerized() bool {
	for _, p := range []string{
		"/sys/fs/cgroup/cpu.max",         // cgroup v2
		"/sys/fs/cgroup/cpu/cpu.cfs_quota_us", // cgroup v1
		"/.dockerenv",
	} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// cgroupCPUQuota returns cpu_quota / cpu_period as an unrounded float, or 0
// if unavailable/unlimited; detect rounds it up.
func cgroupCPUQuota() float64 {
	// cgroup v2: "$MAX $PERIOD" or "max $PERIOD"
	if b, err := os.ReadFile("/sys/fs/cgroup/cpu.max"); err == nil {
		fields := strings.Fields(string(b))
		if len(fields) == 2 && fields[0] != "max" {
			quota, err1 := strconv.ParseFloat(fields[0], 64)
			period, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 == nil && err2 == nil && period > 0 {
				return quota / period
			}
		}
		return 0
	}

	// cgroup v1
	quotaB, err1 := os.ReadFile("/sys/fs/cgroup/cpu/cpu.cfs_quota_us")
	periodB, err2 := os.ReadFile("/sys/fs/cgroup/cpu/cpu.cfs_period_us")
	if err1 != nil || err2 != nil {
		return 0
	}
	quota, err1 := strconv.ParseFloat(strings.TrimSpace(string(quotaB)), 64)
	period, err2 := strconv.ParseFloat(strings.TrimSpace(string(periodB)), 64)
	if err1 != nil || err2 != nil || quota <= 0 || period <= 0 {
		return 0
	}
	return quota / period
}

// cgroupMemoryLimitGB returns memory.max/memory.limit_in_bytes converted to
// GiB, or 0 if unavailable/unlimited.
func cgroupMemoryLimitGB() float64 {
	if b, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(b))
		if s == "max" {
			return 0
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			return v / (1 << 30)
		}
		return 0
	}

	if b, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		s := strings.TrimSpace(string(b))
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && v < 1<<62 {
			return v / (1 << 30)
		}
	}
	return 0
}

// probeMemGB returns total system memory from /proc/meminfo in GiB, or a
// conservative default of 2 GiB if unavailable (non-Linux, permission
// denied, etc).
func probeMemGB() float64 {
	b, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 2
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if kb, err := strconv.ParseFloat(fields[1], 64); err == nil {
					return kb / (1 << 20)
				}
			}
		}
	}
	return 2
}
