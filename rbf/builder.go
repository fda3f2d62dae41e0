package rbf

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/rbf/checksum"
	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
)

// Builder stages one frame in memory and writes it in a single call to
// EndAppend. A Builder is bound to the epoch it was created in; once the
// file moves to another epoch (a newer BeginAppend, or Close) every
// operation on it fails with a StateError.
//
// Callers that may bail out should defer Abort; it is a no-op after
// EndAppend.
type Builder struct {
	file  *File
	epoch uint64
	done  bool
	sink  *StagingSink
}

// BeginAppend starts a streaming frame. It panics if another Builder is
// active on f. The file stays busy until the Builder is finished with
// EndAppend or Abort, or the file is closed: a Builder that is simply
// dropped blocks every later Append and BeginAppend.
func (f *File) BeginAppend() (*Builder, error) {
	if f.building {
		panic("rbf: BeginAppend called while another Builder is active")
	}
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	f.epoch++
	f.building = true
	b := &Builder{file: f, epoch: f.epoch}
	b.sink = newStagingSink(b, f.pool)
	return b, nil
}

// Sink returns the staging sink payload and tail metadata are written to.
func (b *Builder) Sink() *StagingSink { return b.sink }

// Epoch returns the file generation the Builder belongs to.
func (b *Builder) Epoch() uint64 { return b.epoch }

// check returns a StateError when b can no longer be used. A Builder found
// stale gives its staging buffer back right away.
func (b *Builder) check() error {
	if b.done {
		return core.StateError("builder is already finished")
	}
	if f := b.file; b.epoch != f.epoch {
		b.done = true
		b.sink.release()
		return core.StateError("stale builder from epoch %d; file is at epoch %d", b.epoch, f.epoch).
			WithDetail(core.DetailExpected, f.epoch).
			WithDetail(core.DetailActual, b.epoch).
			WithHint("start a new frame with BeginAppend")
	}
	return nil
}

// finish ends the Builder and returns the file to Idle.
func (b *Builder) finish() {
	b.done = true
	b.sink.release()
	if b.file.epoch == b.epoch {
		b.file.building = false
	}
}

// Abort discards everything staged without touching the file. It is
// idempotent and safe on a stale or finished Builder.
func (b *Builder) Abort() {
	if b.done {
		return
	}
	b.finish()
}

// EndAppend writes the staged bytes as one frame and returns its ticket.
// The last tailMetaLength staged bytes become the tail metadata.
//
// Validation failures leave the Builder open so the caller can fix the
// problem or Abort. A failed write ends the Builder.
func (b *Builder) EndAppend(tag uint32, tailMetaLength int) (ticket frame.Ticket, err error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	f := b.file
	s := b.sink

	staged := s.Len()
	if tailMetaLength < 0 {
		return 0, core.ArgumentError("negative tail metadata length %d", tailMetaLength)
	}
	if limit := min(frame.MaxTailMetaLength, staged); tailMetaLength > limit {
		return 0, core.ArgumentError("tail metadata length %d exceeds %d", tailMetaLength, limit).
			WithDetail(core.DetailLength, tailMetaLength)
	}
	if n := s.Pending(); n > 0 {
		return 0, core.StateError("%d reservations are not committed", n).
			WithHint("commit every reservation before EndAppend")
	}

	l, err := frame.NewLayout(staged-tailMetaLength, tailMetaLength)
	if err != nil {
		return 0, err
	}
	offset := f.tailOffset
	ticket, err = frame.NewTicket(offset, l.FrameLength())
	if err != nil {
		return 0, err
	}

	if err := f.trigger(hooks.NewPreFrameAppendEvent(hooks.PreFrameAppendPayload{
		Path:           f.path,
		Tag:            &tag,
		PayloadLength:  l.PayloadLength(),
		TailMetaLength: l.TailMetaLength(),
		Streaming:      true,
	})); err != nil {
		return 0, fmt.Errorf("frame append rejected: %w", err)
	}

	span := f.startSpan("RBF.EndAppend",
		attribute.Int64("rbf.offset", offset),
		attribute.Int("rbf.payload_length", l.PayloadLength()),
		attribute.Int("rbf.tail_meta_length", l.TailMetaLength()),
	)
	defer func() { endSpan(span, err) }()

	s.grow(l.PaddingLength() + frame.SuffixSize)
	end := len(s.buf)
	s.buf = s.buf[:end+l.PaddingLength()+frame.SuffixSize]
	frame.PutHeadLen(s.buf, l.FrameLength())
	state := checksum.Init().Update(s.buf[frame.HeadLenSize:end])
	frame.PutSuffix(s.buf[end:], l, state, l.Descriptor(false), tag)

	err = f.writeAt(s.buf, offset)
	b.finish()
	if err != nil {
		f.logger.Error("Frame append failed.", "offset", offset, "frame_length", l.FrameLength(), "error", err)
		f.discardTail()
		f.afterAppend(tag, offset, l, false, true, 1, err)
		return 0, err
	}

	f.tailOffset = ticket.End() + frame.FenceSize
	f.afterAppend(tag, offset, l, false, true, 1, nil)
	return ticket, nil
}
