package rbf

import (
	"io"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
)

const initialStagingSize = 1024

// Reservation is an opaque handle to a placeholder returned by
// StagingSink.Reserve.
type Reservation struct {
	id uint64
}

type reservedRange struct {
	offset int
	length int
}

// StagingSink accumulates a Builder's payload and tail metadata in memory.
// Nothing reaches the file until Builder.EndAppend.
type StagingSink struct {
	b *Builder
	// buf[:frame.HeadLenSize] is headroom for HeadLen; staged bytes follow.
	buf     []byte
	pending map[uint64]reservedRange
	nextID  uint64
}

var _ io.Writer = (*StagingSink)(nil)

func newStagingSink(b *Builder, pool core.BytePool) *StagingSink {
	buf := pool.Rent(initialStagingSize)
	return &StagingSink{
		b:   b,
		buf: buf[:frame.HeadLenSize],
	}
}

// Write appends p to the staged bytes.
func (s *StagingSink) Write(p []byte) (int, error) {
	if err := s.b.check(); err != nil {
		return 0, err
	}
	s.grow(len(p))
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Reserve appends n zero bytes and returns a handle for filling them in
// later with Commit. EndAppend fails while any reservation is pending.
func (s *StagingSink) Reserve(n int) (Reservation, error) {
	if err := s.b.check(); err != nil {
		return Reservation{}, err
	}
	if n < 0 {
		return Reservation{}, core.ArgumentError("negative reservation length %d", n)
	}
	s.grow(n)
	off := len(s.buf)
	s.buf = s.buf[:off+n]
	clear(s.buf[off:])

	if s.pending == nil {
		s.pending = make(map[uint64]reservedRange)
	}
	s.nextID++
	s.pending[s.nextID] = reservedRange{offset: off, length: n}
	return Reservation{id: s.nextID}, nil
}

// Commit fills a reserved range with value, which must be exactly as long
// as the reservation. Other staged bytes do not move.
func (s *StagingSink) Commit(r Reservation, value []byte) error {
	if err := s.b.check(); err != nil {
		return err
	}
	rr, ok := s.pending[r.id]
	if !ok {
		return core.StateError("reservation is not pending")
	}
	if len(value) != rr.length {
		return core.ArgumentError("commit of %d bytes into a %d-byte reservation", len(value), rr.length).
			WithDetail(core.DetailExpected, rr.length).
			WithDetail(core.DetailActual, len(value))
	}
	copy(s.buf[rr.offset:], value)
	delete(s.pending, r.id)
	return nil
}

// Len returns the number of staged bytes, reservations included.
func (s *StagingSink) Len() int {
	if s.buf == nil {
		return 0
	}
	return len(s.buf) - frame.HeadLenSize
}

// Pending returns the number of uncommitted reservations.
func (s *StagingSink) Pending() int { return len(s.pending) }

// grow makes room for n more bytes, re-renting from the pool.
func (s *StagingSink) grow(n int) {
	need := len(s.buf) + n
	if need <= cap(s.buf) {
		return
	}
	size := 2 * cap(s.buf)
	if size < need {
		size = need
	}
	pool := s.b.file.pool
	next := pool.Rent(size)[:len(s.buf)]
	copy(next, s.buf)
	pool.Return(s.buf)
	s.buf = next
}

func (s *StagingSink) release() {
	if s.buf == nil {
		return
	}
	s.b.file.pool.Return(s.buf)
	s.buf = nil
	s.pending = nil
}
