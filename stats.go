package eventqueue

import (
	"sync/atomic"

	"github.com/joeycumines/go-eventqueue/internal/sizeclass"
)

// queueStats holds the Queue's live instrumentation counters, grounded on
// the teacher's BlitzMem Allocator.state field shape (internal counters
// updated via atomics, exposed through a plain-value snapshot type).
type queueStats struct {
	allocs       atomic.Uint64
	frees        atomic.Uint64
	freelistHits atomic.Uint64
	slabBumps    atomic.Uint64
	exhausted    atomic.Uint64
	posted       atomic.Uint64
	dispatched   atomic.Uint64
	retired      atomic.Uint64
	rearmed      atomic.Uint64
	cancelled    atomic.Uint64
	breaks       atomic.Uint64

	bySizeClass [sizeclass.NumClasses]atomic.Uint64
}

// Stats is a point-in-time snapshot of a Queue's instrumentation, returned
// by Queue.Stats.
type Stats struct {
	Allocs       uint64
	Frees        uint64
	FreelistHits uint64
	SlabBumps    uint64
	Exhausted    uint64
	Posted       uint64
	Dispatched   uint64
	Retired      uint64
	Rearmed      uint64
	Cancelled    uint64
	Breaks       uint64

	AllocsBySizeClass [sizeclass.NumClasses]uint64
}

func (s *queueStats) snapshot() Stats {
	out := Stats{
		Allocs:       s.allocs.Load(),
		Frees:        s.frees.Load(),
		FreelistHits: s.freelistHits.Load(),
		SlabBumps:    s.slabBumps.Load(),
		Exhausted:    s.exhausted.Load(),
		Posted:       s.posted.Load(),
		Dispatched:   s.dispatched.Load(),
		Retired:      s.retired.Load(),
		Rearmed:      s.rearmed.Load(),
		Cancelled:    s.cancelled.Load(),
		Breaks:       s.breaks.Load(),
	}
	for i := range s.bySizeClass {
		out.AllocsBySizeClass[i] = s.bySizeClass[i].Load()
	}
	return out
}
