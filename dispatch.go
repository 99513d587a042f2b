package eventqueue

import (
	"time"

	"github.com/joeycumines/go-eventqueue/internal/qlog"
)

// Dispatch runs the event loop until maxDuration elapses (or forever, if
// maxDuration < 0), draining and firing every due event and sleeping
// between drains for however long until the next deadline or a Signal
// arrives, per spec §5. Only one goroutine may Dispatch at a time; a
// concurrent call returns ErrAlreadyDispatching immediately rather than
// racing the drain loop — the spec leaves concurrent dispatch undefined,
// and this is the deliberate, documented strengthening chosen for it (see
// SPEC_FULL.md).
func (q *Queue) Dispatch(maxDuration time.Duration) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyDispatching
	}
	defer q.running.Store(false)

	var maxMs int64 = -1
	if maxDuration >= 0 {
		maxMs = maxDuration.Milliseconds()
	}
	start := q.clock.NowMillis()

	for {
		nextDeadline := q.drainAndDispatch()

		q.queuelock.Lock()
		if q.breaks > 0 {
			q.breaks--
			q.queuelock.Unlock()
			return nil
		}
		q.queuelock.Unlock()

		sleepMs := nextDeadline
		if maxMs >= 0 {
			elapsed := int64(int32(q.clock.NowMillis() - start))
			remaining := maxMs - elapsed
			if remaining <= 0 {
				return nil
			}
			if sleepMs < 0 || remaining < sleepMs {
				sleepMs = remaining
			}
		}

		var wait time.Duration
		if sleepMs < 0 {
			wait = -1
		} else {
			wait = time.Duration(sleepMs) * time.Millisecond
		}
		q.sema.Wait(wait)
	}
}

// Break requests that the current (or next) Dispatch call return after
// finishing its current drain pass, per spec §5.
func (q *Queue) Break() {
	q.queuelock.Lock()
	q.breaks++
	q.queuelock.Unlock()
	q.stats.breaks.Add(1)
	q.sema.Signal()
}

// drainAndDispatch drains every currently-due event, fires each in
// enqueue order, and retires or re-arms it immediately after firing (never
// batching fire and retire into separate passes, which would let a
// concurrent Cancel observe and mutate an event between the two and
// silently change whether it re-arms). Returns the next pending deadline
// in relative milliseconds, or -1 if the queue is empty.
func (q *Queue) drainAndDispatch() int64 {
	now := q.clock.NowMillis()

	q.queuelock.Lock()
	due, nextDeadline := q.dequeueLocked(now)
	for _, idx := range due {
		// Mark in-flight: negate id so a concurrent Cancel can recognize
		// this event is mid-fire and only suppress re-arming rather than
		// try to unlink a node no longer in the queue.
		q.arena[idx].id = -q.arena[idx].id
	}
	q.queuelock.Unlock()

	for _, idx := range due {
		q.queuelock.Lock()
		cb := q.arena[idx].cb
		payload := q.payloadBytes(&q.arena[idx])
		q.queuelock.Unlock()

		fired := cb != nil
		if fired {
			q.fireOne(idx, cb, payload)
			q.stats.dispatched.Add(1)
		}
		q.retireOne(idx, fired)
	}

	return nextDeadline
}

// fireOne invokes cb with a recovered panic boundary: a callback panic is
// logged, not propagated, so one misbehaving event cannot take down the
// dispatch loop or leave the queue's locks in an inconsistent state (the
// call happens with no lock held, so a recovered panic here never needed
// to unwind through locked code to begin with, but recovery is still
// required to protect the rest of the drain pass). This is a necessary Go
// adaptation: the original C model has no equivalent unwinding concern.
func (q *Queue) fireOne(idx int32, cb Callback, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Log(qlog.LogEntry{
				Level:    qlog.LevelError,
				Category: "eventqueue",
				Message:  "recovered panic in event callback",
				Fields:   []qlog.Field{{Key: "panic", Val: r}},
			})
		}
	}()
	cb(payload)
}

// retireOne finishes processing a fired (or skipped, if its callback was
// cleared by a racing Cancel) event: periodic events are re-armed for
// their next deadline, everything else is retired back to the freelist
// with its generation advanced and destructor run.
func (q *Queue) retireOne(idx int32, fired bool) {
	q.queuelock.Lock()
	hdr := &q.arena[idx]

	if fired && hdr.period >= 0 {
		hdr.id = -hdr.id // undo the in-flight negation
		now := q.clock.NowMillis()
		q.enqueueLocked(idx, uint32(int64(now)+hdr.period))
		q.queuelock.Unlock()
		q.stats.rearmed.Add(1)
		q.sema.Signal()
		return
	}

	// hdr.id is still negated (marked in-flight by drainAndDispatch); un-negate
	// before incrementing, matching the Cancel default branch where hdr.id is
	// already positive.
	hdr.id = nextGeneration(-hdr.id, q.npw2)
	dtor := hdr.dtor
	hdr.cb = nil
	hdr.dtor = nil
	payload := q.payloadBytes(hdr)
	q.queuelock.Unlock()

	q.memlock.Lock()
	hdr.allocated = false
	q.insertFreelist(idx)
	q.memlock.Unlock()

	q.stats.retired.Add(1)
	if dtor != nil {
		dtor(payload)
	}
}
