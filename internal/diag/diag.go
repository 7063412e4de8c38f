// Package diag provides optional runtime diagnostics for the pipeline
// process, adapted from the teacher repo's debug.StartGoroutineLogger:
// a ticker that logs goroutine count and heap stats, started only when
// config.Config.Debug is set. It carries no domain logic of its own.
package diag

import (
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// StartGoroutineLogger launches a ticker that logs goroutine count and
// heap memory stats at interval until stop is closed. It is lightweight
// and meant to rule out goroutine- or heap-driven growth in the pipeline
// process, not as a general profiling tool.
func StartGoroutineLogger(interval time.Duration, logger *slog.Logger, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				metrics.Read(samples)
				goroutines := samples[0].Value.Uint64()
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				logger.Info("pipeline-diagnostics",
					slog.Uint64("goroutines", goroutines),
					slog.Uint64("heap_alloc", ms.HeapAlloc),
					slog.Uint64("heap_inuse", ms.HeapInuse),
					slog.Uint64("num_gc", uint64(ms.NumGC)),
				)
			}
		}
	}()
}
