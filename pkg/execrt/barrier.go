package execrt

import (
	"runtime"
	"sync/atomic"
)

// barrier is a single-shot synchronization point: a producer sets an
// atomic flag once, and the waiter spins until it observes it
// (spec.md §4.4 step 5, §5). The inter-op pool is small and a logic
// stream runs for the whole inference call, so the latency of a
// wake-up from a park/unpark primitive would dwarf the wait itself --
// spinning wins here, the mirror image of internal/workerspool's
// larger, coarser-grained pool.
type barrier struct {
	done atomic.Bool
}

func (b *barrier) set() {
	b.done.Store(true)
}

func (b *barrier) wait() {
	for !b.done.Load() {
		runtime.Gosched()
	}
}
