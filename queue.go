package eventqueue

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-eventqueue/internal/qlog"
)

// Queue is a deferred-execution event queue over a caller-provided (or
// self-allocated) buffer: a slab+freelist allocator paired with a
// timer-sorted intrusive queue, per spec §1-§4.
//
// The spec's single raw buffer is split here into two Go-level pieces for
// GC safety (see chunk.go's doc comment): a typed arena of chunkHeader
// holding every pointer-containing field, and slab, a plain []byte holding
// only opaque payload bytes. offsetIndex bridges the two: given a payload
// slice's address, it recovers the owning arena index in O(1).
type Queue struct {
	// memlock guards the allocator (arena bookkeeping, freelist, slab
	// cursor); queuelock guards the timer queue and each chunk's live
	// scheduling fields (cb, period, dtor, target once queued). Whenever
	// both are needed together, queuelock is always acquired first and
	// released last, to rule out lock-ordering deadlocks.
	memlock   sync.Mutex
	queuelock sync.Mutex

	arena     []chunkHeader
	freeRoot  int32 // head of the freelist, -1 if empty
	queueRoot int32 // head of the timer queue, -1 if empty
	breaks    int32 // pending Break() count, consumed one per Dispatch loop iteration

	slab          []byte
	slabRemaining int32
	wordSize      int32
	offsetIndex   []int32 // slab offset (divided by wordSize) -> arena index, -1 until carved

	npw2 int // bits needed to address arena slots, for Handle packing

	clock  Clock
	sema   Semaphore
	logger qlog.Logger

	stats queueStats

	running atomic.Bool
	closed  atomic.Bool
}

// New allocates an internal buffer of bufSize bytes and returns a ready
// Queue. It is equivalent to the spec's event_queue_new.
func New(bufSize int, opts ...Option) (*Queue, error) {
	return newQueue(make([]byte, bufSize), opts)
}

// NewInPlace builds a Queue over a caller-provided buffer, mirroring the
// spec's in-place construction mode for callers that manage their own
// memory (e.g. a fixed static buffer). The Queue retains and mutates buf
// directly; the caller must not touch it again while the Queue is live.
func NewInPlace(buf []byte, opts ...Option) (*Queue, error) {
	return newQueue(buf, opts)
}

func newQueue(buf []byte, opts []Option) (*Queue, error) {
	cfg := resolveOptions(opts)

	wordSize := int32(cfg.wordSize)
	minChunk := roundUp(chunkOverhead, wordSize)
	if int32(len(buf)) < minChunk {
		return nil, ErrBufferTooSmall
	}

	maxChunks := len(buf) / int(minChunk)
	if maxChunks < 1 {
		return nil, ErrBufferTooSmall
	}

	q := &Queue{
		arena:       make([]chunkHeader, 0, maxChunks),
		freeRoot:    -1,
		queueRoot:   -1,
		slab:        buf,
		wordSize:    wordSize,
		offsetIndex: make([]int32, len(buf)/int(wordSize)+1),
		npw2:        computeNPW2(maxChunks),
		clock:       cfg.clock,
		sema:        cfg.semaphoreFactory(),
		logger:      cfg.logger,
	}
	for i := range q.offsetIndex {
		q.offsetIndex[i] = -1
	}
	q.slabRemaining = int32(len(buf))

	q.logger.Log(qlog.LogEntry{
		Level:    qlog.LevelDebug,
		Category: "eventqueue",
		Message:  "queue initialized",
		Fields: []qlog.Field{
			{Key: "buf_bytes", Val: len(buf)},
			{Key: "max_chunks", Val: maxChunks},
			{Key: "word_size", Val: cfg.wordSize},
		},
	})

	return q, nil
}

// Destroy runs the destructor of every still-allocated (not yet freed or
// fired-and-retired) chunk, per spec §4.1's teardown contract. It does not
// free the underlying buffer (Go's GC owns that); it is safe to drop all
// references to the Queue immediately afterward.
//
// Destructors run without either lock held, matching the contract that
// dtors never run with queue internals locked (spec §4.4 applies the same
// discipline to fired callbacks).
func (q *Queue) Destroy() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}

	type pending struct {
		dtor    Destructor
		payload []byte
	}
	var doomed []pending

	// queuelock is always acquired before memlock when both are needed
	// together (matching Cancel's nesting order), to avoid a lock-ordering
	// deadlock against it.
	q.queuelock.Lock()
	q.memlock.Lock()
	for i := range q.arena {
		hdr := &q.arena[i]
		if hdr.allocated && hdr.dtor != nil {
			doomed = append(doomed, pending{dtor: hdr.dtor, payload: q.payloadBytes(hdr)})
			hdr.dtor = nil
		}
	}
	q.memlock.Unlock()
	q.queuelock.Unlock()

	for _, p := range doomed {
		p.dtor(p.payload)
	}
}

// payloadBytes returns the usable payload slice for hdr.
func (q *Queue) payloadBytes(hdr *chunkHeader) []byte {
	return q.slab[hdr.offset : hdr.offset+hdr.length : hdr.offset+hdr.length]
}

// idxFromPayload recovers the arena index owning payload, via its address
// within the slab. Returns -1 if payload does not point into this Queue's
// slab (e.g. a foreign slice). A stale slice into the slab still maps to its
// chunk's index; callers check the chunk's allocated flag.
//
// unsafe.SliceData is used instead of &payload[0] specifically so that a
// zero-length payload (from Alloc(0)) does not panic: SliceData returns a
// valid, non-nil pointer for any non-nil slice regardless of length, and
// nil only for a nil slice.
func (q *Queue) idxFromPayload(payload []byte) int32 {
	ptr := unsafe.SliceData(payload)
	if ptr == nil || len(q.slab) == 0 {
		return -1
	}
	base := unsafe.SliceData(q.slab)
	offset := uintptr(unsafe.Pointer(ptr)) - uintptr(unsafe.Pointer(base))
	if int(offset) < 0 || int(offset) >= len(q.slab) {
		return -1
	}
	slot := int32(offset) / q.wordSize
	if int(slot) >= len(q.offsetIndex) {
		return -1
	}
	return q.offsetIndex[slot]
}

// Call posts cb for immediate dispatch by allocating an n-byte payload,
// scheduling it with zero delay, and returning its Handle. It is a
// convenience wrapper matching the spec's event_queue_call helper, which
// composes alloc + post for fire-and-forget use.
func (q *Queue) Call(n int, cb Callback) Handle {
	payload := q.Alloc(n)
	if payload == nil {
		return 0
	}
	return q.Post(payload, cb)
}

// Stats returns a point-in-time snapshot of queue instrumentation.
func (q *Queue) Stats() Stats {
	return q.stats.snapshot()
}
