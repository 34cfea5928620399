package scheduler

import "runtime"

func readHeapAllocMB() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc / (1024 * 1024)
}
