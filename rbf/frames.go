package rbf

import (
	"sync/atomic"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
)

// FrameInfo describes a frame whose trailer has been validated. The payload
// has not been checked; read the frame to get verified bytes.
type FrameInfo struct {
	Ticket         frame.Ticket
	Tag            uint32
	PayloadLength  int
	TailMetaLength int
	Tombstone      bool

	file   *File
	layout frame.Layout
}

// FrameLength returns the on-disk length of the frame.
func (i FrameInfo) FrameLength() int { return i.Ticket.Length() }

// Frame is a fully verified frame whose bytes live in a caller-owned
// buffer. It is valid as long as that buffer is not reused.
type Frame struct {
	Ticket    frame.Ticket
	Tag       uint32
	Tombstone bool

	data       []byte
	payloadLen int
}

// Payload returns the payload bytes.
func (f Frame) Payload() []byte { return f.data[:f.payloadLen:f.payloadLen] }

// TailMeta returns the tail metadata bytes.
func (f Frame) TailMeta() []byte { return f.data[f.payloadLen:] }

// Data returns payload and tail metadata as one view.
func (f Frame) Data() []byte { return f.data }

// lease owns one pooled buffer. Every copy of a pooled handle shares the
// same lease, so only the first Release returns the buffer.
type lease struct {
	pool     core.BytePool
	buf      []byte
	released atomic.Bool
}

func newLease(pool core.BytePool, buf []byte) *lease {
	return &lease{pool: pool, buf: buf}
}

func (l *lease) release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.Return(l.buf)
	l.buf = nil
}

// PooledFrame is a verified frame backed by a pooled buffer. Call Release
// when done; the views it returned are invalid afterwards. Release is
// idempotent and safe on copies.
type PooledFrame struct {
	Frame
	lease *lease
}

// Release gives the buffer back to the pool.
func (p PooledFrame) Release() { p.lease.release() }

// Released reports whether the buffer has been given back.
func (p PooledFrame) Released() bool { return p.lease == nil || p.lease.released.Load() }

// TailMeta is the tail metadata of one frame, read at structural trust: the
// trailer was validated but PayloadCrc was not checked.
type TailMeta struct {
	Ticket    frame.Ticket
	Tag       uint32
	Tombstone bool

	data []byte
}

// Bytes returns the tail metadata.
func (t TailMeta) Bytes() []byte { return t.data }

// PooledTailMeta is TailMeta backed by a pooled buffer.
type PooledTailMeta struct {
	TailMeta
	lease *lease
}

// Release gives the buffer back to the pool. It is idempotent.
func (p PooledTailMeta) Release() { p.lease.release() }
