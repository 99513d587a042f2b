package eventqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_FiresDueEventOnce(t *testing.T) {
	clock := newManualClock(0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	count := 0
	p := q.Alloc(8)
	require.NotNil(t, p)
	q.Post(p, func([]byte) { count++ })

	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 1, count)

	// A second dispatch pass must not re-fire a one-shot event.
	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 1, count)
}

func TestDispatch_PeriodicEventRearmsUntilCancelled(t *testing.T) {
	clock := newManualClock(0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	count := 0
	p := q.Alloc(8)
	require.NotNil(t, p)
	q.EventPeriod(p, 10*time.Millisecond)
	h := q.Post(p, func([]byte) { count++ })

	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 1, count)

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 2, count)

	q.Cancel(h)
	clock.Advance(10 * time.Millisecond)
	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 2, count)
}

func TestDispatch_BreakStopsTheLoop(t *testing.T) {
	clock := newManualClock(0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- q.Dispatch(-1) }()

	// Give the dispatcher a moment to enter its wait, then break it.
	time.Sleep(20 * time.Millisecond)
	q.Break()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after Break")
	}
}

func TestDispatch_ConcurrentCallReturnsErrAlreadyDispatching(t *testing.T) {
	q, err := New(4096)
	require.NoError(t, err)

	started := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		close(started)
		_ = q.Dispatch(-1)
		<-stop
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	err = q.Dispatch(0)
	assert.ErrorIs(t, err, ErrAlreadyDispatching)

	q.Break()
	close(stop)
}

func TestDispatch_CancelDuringFireSuppressesRearm(t *testing.T) {
	clock := newManualClock(0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	p := q.Alloc(8)
	require.NotNil(t, p)
	q.EventPeriod(p, 10*time.Millisecond)

	count := 0
	var h Handle
	h = q.Post(p, func([]byte) {
		count++
		// Cancel itself mid-fire, using the very handle Post returned: this
		// races the dispatcher's in-flight state and must suppress
		// re-arming without panicking or corrupting the queue.
		q.Cancel(h)
	})

	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 1, count)

	clock.Advance(50 * time.Millisecond)
	require.NoError(t, q.Dispatch(0))
	assert.Equal(t, 1, count)
}

func TestDispatch_PanicInCallbackIsRecovered(t *testing.T) {
	q, err := New(4096)
	require.NoError(t, err)

	q.Call(8, func([]byte) { panic("boom") })

	assert.NotPanics(t, func() {
		require.NoError(t, q.Dispatch(0))
	})
}

func TestDispatch_TickWraparoundFires(t *testing.T) {
	clock := newWrapClock(0xFFFFFFF0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	p := q.Alloc(8)
	require.NotNil(t, p)
	q.EventDelay(p, 30*time.Millisecond)
	q.Post(p, func([]byte) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	done := make(chan error, 1)
	go func() { done <- q.Dispatch(2 * time.Second) }()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("event did not fire across tick wraparound")
	}
	q.Break()
	<-done
}

func TestDispatch_MaxDurationZeroReturnsWithoutBlocking(t *testing.T) {
	q, err := New(4096)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, q.Dispatch(0))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_FireThenReuseRejectsStaleHandle(t *testing.T) {
	// Regression test: retireOne must un-negate hdr.id (set in-flight by
	// drainAndDispatch) before advancing the generation, not discard it.
	// Otherwise a fired-and-retired chunk's generation never actually
	// advances, so a freelist-reused slot can come back with the exact same
	// generation as the old, already-fired Handle, and Cancel on the stale
	// handle would wrongly hit the new occupant.
	clock := newManualClock(0)
	q, err := New(4096, WithClock(clock))
	require.NoError(t, err)

	p1 := q.Alloc(8)
	require.NotNil(t, p1)
	staleHandle := q.Post(p1, func([]byte) {})
	require.NoError(t, q.Dispatch(0))

	p2 := q.Alloc(8)
	require.NotNil(t, p2)
	require.Equal(t, q.idxFromPayload(p1), q.idxFromPayload(p2), "expected the freed slot to be reused")
	q.EventDelay(p2, time.Hour)
	newCalled := false
	q.Post(p2, func([]byte) { newCalled = true })

	// The stale handle from the fired-and-retired event must be rejected as
	// a no-op, leaving the new, unrelated queued event untouched.
	q.Cancel(staleHandle)

	clock.Advance(2 * time.Hour)
	require.NoError(t, q.Dispatch(0))
	assert.True(t, newCalled, "Cancel on a stale handle must not unlink the new occupant's event")
}
