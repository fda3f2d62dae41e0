package core

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// BytePool is the pooled buffer allocator RBF borrows for staging and reads.
// Rent returns a slice of length minSize; Return hands it back. Buffers must
// not be used after Return.
type BytePool interface {
	Rent(minSize int) []byte
	Return(buf []byte)
}

const (
	// minPoolClassShift is log2 of the smallest pooled capacity (256 B).
	minPoolClassShift = 8
	// maxPoolClassShift is log2 of the largest pooled capacity (16 MiB).
	// Larger requests are allocated directly and dropped on Return.
	maxPoolClassShift = 24
)

// bytePool keeps one sync.Pool per power-of-two capacity class.
type bytePool struct {
	classes [maxPoolClassShift - minPoolClassShift + 1]sync.Pool

	// Metrics
	hits        atomic.Uint64 // Rent served from a pool class.
	misses      atomic.Uint64 // Rent that had to allocate.
	oversized   atomic.Uint64 // Rent larger than the biggest class.
	outstanding atomic.Int64  // Rented and not yet returned.
}

// DefaultBytePool is shared by files that do not configure their own pool.
var DefaultBytePool = NewBytePool()

// NewBytePool creates an empty size-classed pool.
func NewBytePool() *bytePool {
	return &bytePool{}
}

// classFor returns the class index for a capacity request, or -1 when the
// request exceeds the largest class.
func classFor(size int) int {
	if size <= 1<<minPoolClassShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxPoolClassShift {
		return -1
	}
	return shift - minPoolClassShift
}

// Rent returns a buffer with len == minSize and a power-of-two capacity.
func (p *bytePool) Rent(minSize int) []byte {
	if minSize < 0 {
		minSize = 0
	}
	p.outstanding.Add(1)
	class := classFor(minSize)
	if class < 0 {
		p.oversized.Add(1)
		return make([]byte, minSize)
	}
	if v := p.classes[class].Get(); v != nil {
		p.hits.Add(1)
		buf := *(v.(*[]byte))
		return buf[:minSize]
	}
	p.misses.Add(1)
	return make([]byte, minSize, 1<<(class+minPoolClassShift))
}

// Return gives buf back to its class. Buffers whose capacity is not exactly
// a class size (foreign or oversized) are dropped for the GC.
func (p *bytePool) Return(buf []byte) {
	if buf == nil {
		return
	}
	p.outstanding.Add(-1)
	c := cap(buf)
	class := classFor(c)
	if class < 0 || c != 1<<(class+minPoolClassShift) {
		return
	}
	buf = buf[:c]
	p.classes[class].Put(&buf)
}

// GetMetrics returns the current metrics for the pool.
func (p *bytePool) GetMetrics() (hits, misses, oversized uint64, outstanding int64) {
	return p.hits.Load(), p.misses.Load(), p.oversized.Load(), p.outstanding.Load()
}

// Outstanding returns the number of buffers rented and not returned.
func (p *bytePool) Outstanding() int64 {
	return p.outstanding.Load()
}
