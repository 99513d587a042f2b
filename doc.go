// Package eventqueue provides a deferred-execution event queue for embedded
// and soft-real-time use: callbacks are posted with an absolute dispatch
// deadline and fired on a dispatcher goroutine once their deadline elapses.
//
// # Architecture
//
// A [Queue] is built around four cooperating subsystems:
//
//   - a chunk allocator carving payload-sized chunks out of a caller-sized
//     buffer, reusing freed chunks via a size-sorted freelist before ever
//     bumping the never-yet-used slab tail ([Queue.Alloc], [Queue.Dealloc]);
//   - a timed queue keeping posted events sorted by deadline, with events
//     sharing a deadline forming an O(1)-insertable sibling bucket;
//   - an id/lifecycle protocol packing a chunk's arena slot and generation
//     into a [Handle], letting [Queue.Cancel] detect stale handles without a
//     registry lookup;
//   - a dispatcher draining due events under lock, firing callbacks with no
//     lock held, and re-arming periodics ([Queue.Dispatch]).
//
// Once a [Queue] is constructed, event storage is never allocated again: the
// arena and payload slab are sized once, up front. (The dispatcher still
// makes small Go heap allocations per drain pass, such as the due-event list
// and the wait timer.)
//
// # Thread Safety
//
// [Queue.Alloc], [Queue.Dealloc], [Queue.Post], and [Queue.Cancel] are safe
// to call from any goroutine, including interrupt-like contexts, provided the
// configured [Semaphore] tolerates that context. Exactly one goroutine may
// call [Queue.Dispatch] at a time; a concurrent call returns
// [ErrAlreadyDispatching]. Callbacks and destructors always run with no
// internal lock held.
//
// # Usage
//
//	q, err := eventqueue.New(64 * 1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Destroy()
//
//	payload := q.Alloc(0)
//	q.EventDelay(payload, 100*time.Millisecond)
//	h := q.Post(payload, func(_ []byte) {
//	    fmt.Println("fired")
//	})
//	_ = h
//
//	if err := q.Dispatch(time.Second); err != nil {
//	    log.Fatal(err)
//	}
package eventqueue

// Callback is invoked when a posted event's deadline elapses. It receives
// the event's payload bytes and runs with no lock held. A nil Callback means
// the posting has been cancelled; the dispatcher drops such dispatches.
type Callback func(payload []byte)

// Destructor is invoked on an event's payload at most once, at retirement
// (one-shot fire, or cancellation of a queued event) or at [Queue.Destroy],
// with no lock held.
type Destructor func(payload []byte)
