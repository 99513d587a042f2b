// Package sizeclass provides an observability-only size-class table for
// bucketing allocation sizes into a fixed histogram (see Queue.Stats'
// AllocsBySizeClass). It has no bearing on the allocator's placement policy:
// the allocator is best-fit-on-freelist-else-bump-slab and never splits or
// coalesces chunks; size classes here exist purely so operators can see the
// allocation-size distribution at a glance.
package sizeclass

// Class identifies one bucket of the size-class histogram.
type Class uint8

const (
	C8B Class = iota
	C16B
	C32B
	C64B
	C128B
	C256B
	C512B
	C1KB
	C2KB
	C4KB
	C8KB
	C16KB
	C32KB
	C64KB
	C128KB
	C256KB
	C512KB
	C1MB
	C2MB
	numClasses
)

// NumClasses is the histogram width callers should size their bucket arrays to.
const NumClasses = int(numClasses)

var bounds = [numClasses]int{
	C8B:    8,
	C16B:   16,
	C32B:   32,
	C64B:   64,
	C128B:  128,
	C256B:  256,
	C512B:  512,
	C1KB:   1024,
	C2KB:   1024 * 2,
	C4KB:   1024 * 4,
	C8KB:   1024 * 8,
	C16KB:  1024 * 16,
	C32KB:  1024 * 32,
	C64KB:  1024 * 64,
	C128KB: 1024 * 128,
	C256KB: 1024 * 256,
	C512KB: 1024 * 512,
	C1MB:   1024 * 1024,
	C2MB:   1024 * 1024 * 2,
}

var names = [numClasses]string{
	"8B", "16B", "32B", "64B", "128B", "256B", "512B", "1KB", "2KB",
	"4KB", "8KB", "16KB", "32KB", "64KB", "128KB", "256KB", "512KB",
	"1MB", "2MB",
}

// Of returns the smallest size class whose bound is >= size, or the largest
// class if size exceeds every bound.
func Of(size int) Class {
	for c, b := range bounds {
		if size <= b {
			return Class(c)
		}
	}
	return C2MB
}

// String returns the human-readable class name.
func (c Class) String() string {
	if int(c) < 0 || int(c) >= NumClasses {
		return "unknown"
	}
	return names[c]
}
