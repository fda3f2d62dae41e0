package rbf

import (
	"github.com/INLOpen/rbf/checksum"
	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
)

// checkTicket rejects tickets that cannot address a frame of this file.
func (f *File) checkTicket(t frame.Ticket) error {
	if t.Offset() < frame.HeaderFenceSize || t.Length() < frame.MinFrameLength || t.End() > f.tailOffset {
		return core.FramingError("%s lies outside the file [%d, %d)", t, frame.HeaderFenceSize, f.tailOffset).
			WithDetail(core.DetailOffset, t.Offset()).
			WithDetail(core.DetailLength, t.Length())
	}
	return nil
}

// ReadFrameInfo validates the trailer of the frame at t without reading its
// payload.
func (f *File) ReadFrameInfo(t frame.Ticket) (FrameInfo, error) {
	if err := f.checkOpen(); err != nil {
		return FrameInfo{}, err
	}
	if err := f.checkTicket(t); err != nil {
		return FrameInfo{}, err
	}
	var trailer [frame.TrailerSize]byte
	if err := f.readFull(trailer[:], t.End()-frame.TrailerSize); err != nil {
		return FrameInfo{}, err
	}
	tr, l, err := frame.DecodeTrailer(trailer[:])
	if err != nil {
		return FrameInfo{}, err
	}
	if int(tr.TailLen) != t.Length() {
		return FrameInfo{}, core.FramingError("trailer length %d does not match ticket length %d", tr.TailLen, t.Length()).
			WithDetail(core.DetailExpected, t.Length()).
			WithDetail(core.DetailActual, tr.TailLen)
	}
	return f.newFrameInfo(t, tr, l), nil
}

func (f *File) newFrameInfo(t frame.Ticket, tr frame.Trailer, l frame.Layout) FrameInfo {
	return FrameInfo{
		Ticket:         t,
		Tag:            tr.Tag,
		PayloadLength:  l.PayloadLength(),
		TailMetaLength: l.TailMetaLength(),
		Tombstone:      tr.Descriptor.IsTombstone(),
		file:           f,
		layout:         l,
	}
}

// ReadFrame reads and fully verifies the frame at t into buf, which must
// hold at least t.Length() bytes. The returned Frame views buf.
func (f *File) ReadFrame(t frame.Ticket, buf []byte) (Frame, error) {
	if err := f.checkOpen(); err != nil {
		return Frame{}, err
	}
	if err := f.checkTicket(t); err != nil {
		return Frame{}, err
	}
	if len(buf) < t.Length() {
		return Frame{}, core.BufferTooSmallError(t.Length(), len(buf))
	}
	buf = buf[:t.Length()]
	if err := f.readFull(buf, t.Offset()); err != nil {
		return Frame{}, err
	}
	if err := checkHeadLen(buf, t); err != nil {
		return Frame{}, err
	}
	tr, l, err := frame.DecodeTrailer(buf[len(buf)-frame.TrailerSize:])
	if err != nil {
		return Frame{}, err
	}
	if int(tr.TailLen) != t.Length() {
		return Frame{}, core.FramingError("trailer length %d does not match head length %d", tr.TailLen, t.Length())
	}
	if err := checkPayloadCrc(buf, l); err != nil {
		return Frame{}, err
	}
	return newFrame(buf, t, tr.Tag, tr.Descriptor.IsTombstone(), l), nil
}

// ReadPooledFrame is ReadFrame into a buffer rented from the file's pool.
func (f *File) ReadPooledFrame(t frame.Ticket) (PooledFrame, error) {
	if err := f.checkOpen(); err != nil {
		return PooledFrame{}, err
	}
	if err := f.checkTicket(t); err != nil {
		return PooledFrame{}, err
	}
	return f.readPooled(t.Length(), func(buf []byte) (Frame, error) {
		return f.ReadFrame(t, buf)
	})
}

// readPooled rents n bytes, runs read, and gives the buffer back on every
// path except success.
func (f *File) readPooled(n int, read func([]byte) (Frame, error)) (_ PooledFrame, err error) {
	buf := f.pool.Rent(n)
	handedOff := false
	defer func() {
		if !handedOff {
			f.pool.Return(buf)
		}
	}()

	fr, err := read(buf)
	if err != nil {
		return PooledFrame{}, err
	}
	handedOff = true
	return PooledFrame{Frame: fr, lease: newLease(f.pool, buf)}, nil
}

// ReadTailMeta reads the tail metadata of the frame at t into buf. Only the
// trailer is validated.
func (f *File) ReadTailMeta(t frame.Ticket, buf []byte) (TailMeta, error) {
	info, err := f.ReadFrameInfo(t)
	if err != nil {
		return TailMeta{}, err
	}
	return info.ReadTailMeta(buf)
}

// owner returns the file i was read from. A zero FrameInfo has none.
func (i FrameInfo) owner() (*File, error) {
	if i.file == nil {
		return nil, core.StateError("frame info does not describe a frame")
	}
	if err := i.file.checkOpen(); err != nil {
		return nil, err
	}
	return i.file, nil
}

// ReadFrame reads and verifies the frame into buf. The trailer was already
// validated, so only HeadLen and PayloadCrc are checked.
func (i FrameInfo) ReadFrame(buf []byte) (Frame, error) {
	f, err := i.owner()
	if err != nil {
		return Frame{}, err
	}
	if err := f.checkTicket(i.Ticket); err != nil {
		return Frame{}, err
	}
	n := i.Ticket.Length()
	if len(buf) < n {
		return Frame{}, core.BufferTooSmallError(n, len(buf))
	}
	buf = buf[:n]
	if err := f.readFull(buf, i.Ticket.Offset()); err != nil {
		return Frame{}, err
	}
	if err := checkHeadLen(buf, i.Ticket); err != nil {
		return Frame{}, err
	}
	if err := checkPayloadCrc(buf, i.layout); err != nil {
		return Frame{}, err
	}
	return newFrame(buf, i.Ticket, i.Tag, i.Tombstone, i.layout), nil
}

// ReadPooledFrame is ReadFrame into a pooled buffer.
func (i FrameInfo) ReadPooledFrame() (PooledFrame, error) {
	f, err := i.owner()
	if err != nil {
		return PooledFrame{}, err
	}
	return f.readPooled(i.Ticket.Length(), i.ReadFrame)
}

// ReadTailMeta reads the tail metadata into buf without checking PayloadCrc.
func (i FrameInfo) ReadTailMeta(buf []byte) (TailMeta, error) {
	f, err := i.owner()
	if err != nil {
		return TailMeta{}, err
	}
	if len(buf) < i.TailMetaLength {
		return TailMeta{}, core.BufferTooSmallError(i.TailMetaLength, len(buf))
	}
	buf = buf[:i.TailMetaLength]
	if err := f.readFull(buf, i.Ticket.Offset()+int64(i.layout.TailMetaOffset())); err != nil {
		return TailMeta{}, err
	}
	return TailMeta{Ticket: i.Ticket, Tag: i.Tag, Tombstone: i.Tombstone, data: buf}, nil
}

// ReadPooledTailMeta is ReadTailMeta into a pooled buffer.
func (i FrameInfo) ReadPooledTailMeta() (_ PooledTailMeta, err error) {
	f, err := i.owner()
	if err != nil {
		return PooledTailMeta{}, err
	}
	buf := f.pool.Rent(i.TailMetaLength)
	handedOff := false
	defer func() {
		if !handedOff {
			f.pool.Return(buf)
		}
	}()

	tm, err := i.ReadTailMeta(buf)
	if err != nil {
		return PooledTailMeta{}, err
	}
	handedOff = true
	return PooledTailMeta{TailMeta: tm, lease: newLease(f.pool, buf)}, nil
}

func checkHeadLen(buf []byte, t frame.Ticket) error {
	if head := frame.HeadLen(buf); int(head) != t.Length() {
		return core.FramingError("head length %d does not match ticket length %d", head, t.Length()).
			WithDetail(core.DetailOffset, t.Offset()).
			WithDetail(core.DetailExpected, t.Length()).
			WithDetail(core.DetailActual, head)
	}
	return nil
}

// checkPayloadCrc verifies PayloadCrc32 over payload, tail metadata and
// padding of the frame in buf.
func checkPayloadCrc(buf []byte, l frame.Layout) error {
	body := buf[l.PayloadOffset() : l.PayloadOffset()+l.BodyLength()]
	stored := frame.PayloadCrc(buf[l.PayloadCrcOffset():])
	if actual := checksum.Compute(body); actual != stored {
		return core.CrcMismatchError(core.ChecksumPayload, stored, actual)
	}
	return nil
}

func newFrame(buf []byte, t frame.Ticket, tag uint32, tombstone bool, l frame.Layout) Frame {
	return Frame{
		Ticket:     t,
		Tag:        tag,
		Tombstone:  tombstone,
		data:       buf[l.PayloadOffset() : l.PayloadOffset()+l.DataLength()],
		payloadLen: l.PayloadLength(),
	}
}
