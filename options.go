package eventqueue

import "github.com/joeycumines/go-eventqueue/internal/qlog"

// defaultWordSize is the alignment granularity chunks are rounded up to.
const defaultWordSize = 8

// options holds the resolved configuration for a Queue. Grounded on the
// teacher's loopOptions/LoopOption/resolveLoopOptions pattern
// (eventloop/options.go).
type options struct {
	clock            Clock
	semaphoreFactory func() Semaphore
	logger           qlog.Logger
	wordSize         int
}

// Option configures a Queue at construction time.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithClock overrides the monotonic tick source. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return optionFunc(func(o *options) { o.clock = c })
}

// WithSemaphoreFactory overrides how the Queue's internal Semaphore is
// constructed. Defaults to a channel-backed binary semaphore that coalesces
// pending signals.
func WithSemaphoreFactory(f func() Semaphore) Option {
	return optionFunc(func(o *options) { o.semaphoreFactory = f })
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(l qlog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = l })
}

// WithWordSize overrides the chunk alignment granularity (default 8 bytes).
// Mainly useful for tests that want small, predictable chunk sizes.
func WithWordSize(n int) Option {
	return optionFunc(func(o *options) { o.wordSize = n })
}

func resolveOptions(opts []Option) *options {
	cfg := &options{
		clock:            SystemClock{},
		semaphoreFactory: newChanSemaphore,
		logger:           qlog.NewNoOpLogger(),
		wordSize:         defaultWordSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	if cfg.wordSize <= 0 {
		cfg.wordSize = defaultWordSize
	}
	return cfg
}
