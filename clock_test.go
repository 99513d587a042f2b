package eventqueue

import (
	"sync"
	"sync/atomic"
	"time"
)

// manualClock is a test Clock whose NowMillis is advanced explicitly by the
// test, rather than tracking wall-clock time.
type manualClock struct {
	ms atomic.Uint32
}

func newManualClock(start uint32) *manualClock {
	c := &manualClock{}
	c.ms.Store(start)
	return c
}

func (c *manualClock) NowMillis() uint32 { return c.ms.Load() }

func (c *manualClock) Advance(d time.Duration) {
	c.ms.Add(uint32(d.Milliseconds()))
}

// wrapClock is a real-time-driven Clock seeded near the uint32 wraparound
// boundary, so a short-lived test naturally exercises tick wraparound
// comparisons (spec §8 scenario 8) without waiting ~49.7 days.
type wrapClock struct {
	mu    sync.Mutex
	base  uint32
	start time.Time
}

func newWrapClock(base uint32) *wrapClock {
	return &wrapClock{base: base, start: time.Now()}
}

func (c *wrapClock) NowMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + uint32(time.Since(c.start).Milliseconds())
}
