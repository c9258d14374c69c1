package monitoring

import (
	"runtime"
	"sync/atomic"
	"syscall"
)

// Counters tracks relay throughput since process start
type Counters struct {
	batches   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// RecordBatch adds one processed batch
func (c *Counters) RecordBatch(succeeded, failed int) {
	c.batches.Add(1)
	c.succeeded.Add(int64(succeeded))
	c.failed.Add(int64(failed))
}

// Snapshot returns batches, succeeded and failed record counts
func (c *Counters) Snapshot() (batches, succeeded, failed int64) {
	return c.batches.Load(), c.succeeded.Load(), c.failed.Load()
}

// SystemMetrics contains host metrics reported with heartbeats
type SystemMetrics struct {
	MemoryUsage uint64
	DiskUsage   uint64
	DiskTotal   uint64
}

// CollectMetrics gathers process memory and disk usage of the path holding the audit log
func CollectMetrics(path string) SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	diskUsed, diskTotal := GetDiskUsage(path)
	return SystemMetrics{
		MemoryUsage: m.Sys,
		DiskUsage:   diskUsed,
		DiskTotal:   diskTotal,
	}
}

// GetDiskUsage returns the disk usage for a given path in bytes (used, total)
func GetDiskUsage(path string) (uint64, uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return total - free, total
}
