package eventqueue

import "errors"

// Standard errors.
var (
	// ErrBufferTooSmall is returned by New/NewInPlace when the backing
	// buffer cannot hold even a single minimum-sized chunk.
	ErrBufferTooSmall = errors.New("eventqueue: buffer too small for even one chunk")

	// ErrAlreadyDispatching is returned by Dispatch when another goroutine
	// is already dispatching the same Queue. The spec leaves concurrent
	// dispatchers undefined; this module turns that undefined case into a
	// detectable error instead of silently corrupting dispatcher state.
	ErrAlreadyDispatching = errors.New("eventqueue: dispatch is already running on another goroutine")
)
