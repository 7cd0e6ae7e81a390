package observability

import (
	"context"
	"runtime"
	"time"
)

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
}

// CollectRuntimeMetrics reads current Go runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / 1024 / 1024,
	}
}

// SampleRuntime records goroutine and heap gauges every interval until ctx
// is done.
func SampleRuntime(ctx context.Context, mm *MetricsManager, interval time.Duration) {
	if mm == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm := CollectRuntimeMetrics()
			mm.RecordSimple(MetricGoroutinesCount, float64(rm.GoroutinesCount), "count")
			mm.RecordSimple(MetricMemoryAllocMB, rm.MemoryAllocMB, "megabytes")
		}
	}
}
