package metrics

import (
	"runtime"
	"sync/atomic"
	"time"
)

// GlobalMetrics holds the process-wide atomic counters: plain atomic
// counters updated from wherever the event happens. All but MutationsSince
// are exposed through the HTTP stats surface, read without locking by the
// stats handler; MutationsSince drives the TCP server's snapshot trigger.
type GlobalMetrics struct {
	SetOps         int64
	GetOps         int64
	DelOps         int64
	SnapshotCount  int64
	MutationsSince int64
	SysMemAlloc    uint64
	Goroutines     int
}

var Global GlobalMetrics

func IncSet()           { atomic.AddInt64(&Global.SetOps, 1) }
func IncGet()           { atomic.AddInt64(&Global.GetOps, 1) }
func IncDel()           { atomic.AddInt64(&Global.DelOps, 1) }
func IncSnapshotCount() { atomic.AddInt64(&Global.SnapshotCount, 1) }

func IncMutationCounter() int64 {
	return atomic.AddInt64(&Global.MutationsSince, 1)
}

func ResetMutationCounter() {
	atomic.StoreInt64(&Global.MutationsSince, 0)
}

// StartSystemMonitor periodically samples process-level metrics in the
// background so the stats handler never blocks on runtime introspection.
func StartSystemMonitor() {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			atomic.StoreUint64(&Global.SysMemAlloc, m.Alloc)
			Global.Goroutines = runtime.NumGoroutine()
		}
	}()
}
