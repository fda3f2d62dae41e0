package rbf

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/rbf/checksum"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
)

// appendScratchSize bounds the memory the single-call append path uses,
// whatever the payload size.
const appendScratchSize = 4096

// Append writes one frame carrying payload under tag and returns its ticket.
// It panics if a Builder is active on f.
//
// A frame that does not fit the scratch buffer takes two or three
// positional writes; a crash between them leaves a torn frame that the
// reverse scan stops at. Call DurableFlush for a durability barrier.
func (f *File) Append(tag uint32, payload []byte) (frame.Ticket, error) {
	return f.append(tag, payload, false)
}

// AppendTombstone writes a frame flagged as logically deleted. Reverse scans
// skip it unless WithTombstones is given.
func (f *File) AppendTombstone(tag uint32, payload []byte) (frame.Ticket, error) {
	return f.append(tag, payload, true)
}

func (f *File) append(tag uint32, payload []byte, tombstone bool) (ticket frame.Ticket, err error) {
	if f.building {
		panic("rbf: Append called while a Builder is active")
	}
	if err := f.checkWritable(); err != nil {
		return 0, err
	}

	l, err := frame.NewLayout(len(payload), 0)
	if err != nil {
		return 0, err
	}
	offset := f.tailOffset
	ticket, err = frame.NewTicket(offset, l.FrameLength())
	if err != nil {
		return 0, err
	}

	if err := f.trigger(hooks.NewPreFrameAppendEvent(hooks.PreFrameAppendPayload{
		Path:          f.path,
		Tag:           &tag,
		PayloadLength: len(payload),
		Tombstone:     tombstone,
	})); err != nil {
		return 0, fmt.Errorf("frame append rejected: %w", err)
	}

	span := f.startSpan("RBF.Append",
		attribute.Int64("rbf.offset", offset),
		attribute.Int("rbf.payload_length", len(payload)),
		attribute.Bool("rbf.tombstone", tombstone),
	)
	defer func() { endSpan(span, err) }()

	writes, err := f.writeFrame(offset, l, l.Descriptor(tombstone), tag, payload)
	if span != nil {
		span.SetAttributes(attribute.Int("rbf.writes", writes))
	}
	if err != nil {
		f.logger.Error("Frame append failed.", "offset", offset, "frame_length", l.FrameLength(), "writes", writes, "error", err)
		f.discardTail()
		f.afterAppend(tag, offset, l, tombstone, false, writes, err)
		return 0, err
	}

	f.tailOffset = ticket.End() + frame.FenceSize
	f.afterAppend(tag, offset, l, tombstone, false, writes, nil)
	return ticket, nil
}

// writeFrame writes the frame and its closing fence starting at offset and
// returns how many positional writes it issued.
//
// Frames that fit the scratch buffer go out in one write. Larger frames
// write HeadLen alone first; the rest is then either staged as a second
// write, or, when even that does not fit, the payload is written straight
// from the caller's slice and only padding, PayloadCrc, trailer and fence
// are staged for a third write. The PayloadCrc state threads through all of
// them.
func (f *File) writeFrame(offset int64, l frame.Layout, d frame.Descriptor, tag uint32, payload []byte) (int, error) {
	buf := f.scratch
	total := l.FrameLength() + frame.FenceSize

	if total <= len(buf) {
		frame.PutHeadLen(buf, l.FrameLength())
		n := frame.HeadLenSize
		n += copy(buf[n:], payload)
		state := checksum.Init().Update(payload)
		m, _ := frame.PutSuffix(buf[n:], l, state, d, tag)
		return 1, f.writeAt(buf[:n+m], offset)
	}

	frame.PutHeadLen(buf, l.FrameLength())
	if err := f.writeAt(buf[:frame.HeadLenSize], offset); err != nil {
		return 1, err
	}
	pos := offset + frame.HeadLenSize
	state := checksum.Init().Update(payload)

	if total-frame.HeadLenSize <= len(buf) {
		n := copy(buf, payload)
		m, _ := frame.PutSuffix(buf[n:], l, state, d, tag)
		return 2, f.writeAt(buf[:n+m], pos)
	}

	if err := f.writeAt(payload, pos); err != nil {
		return 2, err
	}
	pos += int64(len(payload))
	m, _ := frame.PutSuffix(buf, l, state, d, tag)
	return 3, f.writeAt(buf[:m], pos)
}

func (f *File) afterAppend(tag uint32, offset int64, l frame.Layout, tombstone, streaming bool, writes int, err error) {
	if err == nil && f.metricsFramesWritten != nil {
		f.metricsFramesWritten.Add(1)
	}
	f.trigger(hooks.NewPostFrameAppendEvent(hooks.PostFrameAppendPayload{
		Path:           f.path,
		Tag:            tag,
		Offset:         offset,
		FrameLength:    l.FrameLength(),
		PayloadLength:  l.PayloadLength(),
		TailMetaLength: l.TailMetaLength(),
		Tombstone:      tombstone,
		Streaming:      streaming,
		Writes:         writes,
		Error:          err,
	}))
}
