package eventqueue

import (
	"github.com/joeycumines/go-eventqueue/internal/qlog"
	"github.com/joeycumines/go-eventqueue/internal/sizeclass"
)

// Alloc reserves an n-byte payload chunk, preferring a best-fit reuse from
// the freelist over carving fresh space from the slab (spec §4.1): the
// freelist is kept sorted by size, so the first node that fits is the
// smallest that does, and chunks are never split or coalesced. Returns nil
// if no chunk of sufficient size is available from either source.
func (q *Queue) Alloc(n int) []byte {
	size := q.roundSize(n)

	q.memlock.Lock()
	idx := q.takeFreelist(size)
	fromFreelist := idx >= 0
	if idx < 0 {
		idx = q.takeSlab(size)
	}
	if idx < 0 {
		q.memlock.Unlock()
		q.stats.exhausted.Add(1)
		q.logger.Log(qlog.LogEntry{
			Level:    qlog.LevelDebug,
			Category: "eventqueue",
			Message:  "allocation exhausted",
			Fields:   []qlog.Field{{Key: "requested_bytes", Val: n}},
		})
		return nil
	}

	hdr := &q.arena[idx]
	hdr.allocated = true
	hdr.length = hdr.size - chunkOverhead
	if hdr.length > int32(n) {
		hdr.length = int32(n)
	}
	hdr.target = 0
	hdr.period = -1
	hdr.cb = nil
	hdr.dtor = nil
	payload := q.payloadBytes(hdr)
	q.memlock.Unlock()

	q.stats.allocs.Add(1)
	q.stats.bySizeClass[sizeclass.Of(n)].Add(1)
	if fromFreelist {
		q.stats.freelistHits.Add(1)
	} else {
		q.stats.slabBumps.Add(1)
	}

	return payload
}

// Dealloc releases a payload previously returned by Alloc back to the
// freelist, running its destructor (if any) outside of any lock, per the
// spec's "dtor never runs while locked" discipline. Deallocating a payload
// not currently allocated (already freed, or foreign) is a silent no-op.
func (q *Queue) Dealloc(payload []byte) {
	q.memlock.Lock()
	idx := q.idxFromPayload(payload)
	if idx < 0 || !q.arena[idx].allocated {
		q.memlock.Unlock()
		return
	}

	hdr := &q.arena[idx]
	hdr.allocated = false
	dtor := hdr.dtor
	hdr.cb = nil
	hdr.dtor = nil
	out := q.payloadBytes(hdr)
	q.insertFreelist(idx)
	q.memlock.Unlock()

	q.stats.frees.Add(1)
	if dtor != nil {
		dtor(out)
	}
}

// takeFreelist removes and returns the first (smallest) freelist node
// whose size is >= size, or -1 if none fits. Must be called with memlock
// held.
func (q *Queue) takeFreelist(size int32) int32 {
	cur := q.freeRoot
	for cur >= 0 {
		if q.arena[cur].size >= size {
			q.unlinkNode(cur)
			return cur
		}
		cur = q.arena[cur].next
	}
	return -1
}

// takeSlab carves a fresh chunk of size bytes from the never-yet-used tail
// of the slab, allocating a new arena slot for it. Must be called with
// memlock held. Returns -1 if the slab lacks sufficient remaining space or
// the arena is full.
func (q *Queue) takeSlab(size int32) int32 {
	if size > q.slabRemaining || len(q.arena) == cap(q.arena) {
		return -1
	}

	offset := int32(len(q.slab)) - q.slabRemaining
	idx := int32(len(q.arena))
	q.arena = append(q.arena, chunkHeader{
		size:    size,
		id:      1,
		next:    -1,
		sibling: -1,
		offset:  offset,
	})
	q.slabRemaining -= size

	slot := offset / q.wordSize
	q.offsetIndex[slot] = idx

	return idx
}

// insertFreelist inserts idx into the freelist, kept sorted ascending by
// chunk size so takeFreelist's linear walk finds a best fit in list order.
// Must be called with memlock held.
func (q *Queue) insertFreelist(idx int32) {
	size := q.arena[idx].size
	q.insertSorted(
		refFreeRoot, idx,
		func(candidate int32) bool { return q.arena[candidate].size < size },
		func(candidate int32) bool { return q.arena[candidate].size == size },
	)
}
