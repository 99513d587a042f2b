package eventqueue

import "time"

// EventDelay sets how long after Post is called the event should fire,
// relative to the post time. A negative duration marks the event as a
// no-op post: Post will immediately deallocate it and return a stale
// Handle (spec §4.4's delay<0 contract). The delay is staged on the
// still-unposted chunk's target field; Post reads it back to compute the
// absolute deadline. No-op if payload is not a currently allocated chunk.
//
// EventDelay, EventPeriod, and EventDtor are configuration calls: call them
// only on a chunk between Alloc and Post, from the goroutine that owns it.
// Once Post publishes the chunk, period and dtor become live scheduling
// state guarded by the dispatcher's lock instead, and mutating them
// directly again is not supported — Cancel and re-Post instead.
func (q *Queue) EventDelay(payload []byte, d time.Duration) {
	q.memlock.Lock()
	defer q.memlock.Unlock()
	idx := q.idxFromPayload(payload)
	if idx < 0 || !q.arena[idx].allocated {
		return
	}
	q.arena[idx].target = d.Milliseconds()
}

// EventPeriod marks payload's event as periodic, re-armed every d after it
// fires, until cancelled. A negative or zero duration marks the event
// one-shot (the default). No-op if payload is not a currently allocated
// chunk.
func (q *Queue) EventPeriod(payload []byte, d time.Duration) {
	q.memlock.Lock()
	defer q.memlock.Unlock()
	idx := q.idxFromPayload(payload)
	if idx < 0 || !q.arena[idx].allocated {
		return
	}
	if d <= 0 {
		q.arena[idx].period = -1
		return
	}
	q.arena[idx].period = d.Milliseconds()
}

// EventDtor attaches a destructor to run when payload's event is freed,
// whether via Cancel, Dealloc, Destroy, or final (non-periodic) retirement
// after firing. No-op if payload is not a currently allocated chunk.
func (q *Queue) EventDtor(payload []byte, fn Destructor) {
	q.memlock.Lock()
	defer q.memlock.Unlock()
	idx := q.idxFromPayload(payload)
	if idx < 0 || !q.arena[idx].allocated {
		return
	}
	q.arena[idx].dtor = fn
}

// Post schedules payload's event for dispatch, using whatever delay/period
// were configured via EventDelay/EventPeriod (defaulting to delay 0,
// one-shot), and returns a Handle that can be passed to Cancel. If the
// configured delay is negative, the event is immediately deallocated
// without ever being queued, and the returned Handle is guaranteed stale
// (Cancel on it is always a safe no-op) — matching the spec's delay<0
// "cancel before queued" contract (spec §4.4, §8).
func (q *Queue) Post(payload []byte, cb Callback) Handle {
	q.memlock.Lock()
	idx := q.idxFromPayload(payload)
	if idx < 0 || !q.arena[idx].allocated {
		q.memlock.Unlock()
		return 0
	}
	delay := q.arena[idx].target
	q.memlock.Unlock()

	if delay < 0 {
		q.Dealloc(payload)
		return Handle(1)
	}

	q.queuelock.Lock()
	hdr := &q.arena[idx]
	hdr.cb = cb
	now := q.clock.NowMillis()
	target := uint32(int64(now) + delay)
	q.enqueueLocked(idx, target)
	gen := hdr.id
	q.queuelock.Unlock()

	q.stats.posted.Add(1)
	q.sema.Signal()

	return encodeHandle(q.npw2, idx, gen)
}

// Cancel cancels a previously posted event, tolerating every staleness
// scenario spec §4.3/§8 calls out: an out-of-range slot, a generation
// mismatch (already retired and possibly reused), or a concurrently
// in-flight dispatch (this Cancel clears the event's callback and period, so
// a callback not yet started is skipped and the event is not re-armed; the
// dispatcher then retires it, running its destructor. It cannot stop an
// already-started callback).
func (q *Queue) Cancel(h Handle) {
	slot, gen := decodeHandle(q.npw2, h)
	if slot < 0 || int(slot) >= len(q.arena) {
		return
	}

	q.queuelock.Lock()
	hdr := &q.arena[slot]

	switch {
	case hdr.id == -gen:
		// In flight: a dispatcher goroutine has negated id and is between
		// marking this event in-flight and retiring it. Clearing cb makes
		// the dispatcher skip the callback if it has not yet loaded it, and
		// clearing period suppresses re-arming; a callback already running
		// cannot be stopped.
		hdr.cb = nil
		hdr.period = -1
		q.queuelock.Unlock()
		return

	case hdr.id != gen, !hdr.allocated:
		// Stale: either the generation no longer matches (already
		// retired/cancelled and possibly reused by a later Alloc), or the
		// slot currently sits unallocated on the freelist. The second
		// check guards a theoretical generation-wraparound collision: if
		// id happened to wrap back to a value equal to gen while the slot
		// is free, the naive "else" branch below would misidentify a
		// freelist node as a queued match and corrupt both lists.
		q.queuelock.Unlock()
		return

	default:
		// Queued match: unlink from the timer queue, retire the
		// generation, and return the chunk to the freelist. memlock is
		// acquired nested inside queuelock (the only place both are held
		// together; always in this order) so the chunk moves from
		// "queued" to "on the freelist" atomically, with no window where a
		// concurrent Dealloc on the same payload could double-insert it.
		q.unlinkNode(slot)
		hdr.id = nextGeneration(hdr.id, q.npw2)
		dtor := hdr.dtor
		hdr.cb = nil
		hdr.dtor = nil
		payload := q.payloadBytes(hdr)

		q.memlock.Lock()
		hdr.allocated = false
		q.insertFreelist(slot)
		q.memlock.Unlock()

		q.queuelock.Unlock()

		q.stats.cancelled.Add(1)
		if dtor != nil {
			dtor(payload)
		}
	}
}

// nextGeneration advances a chunk's generation on retirement, wrapping
// back to 1 (never 0, which Handle reserves, and never negative, which
// marks in-flight) once genMax(npw2) is exceeded.
func nextGeneration(id int32, npw2 int) int32 {
	if id <= 0 {
		id = 0
	}
	id++
	if id > genMax(npw2) {
		id = 1
	}
	return id
}
