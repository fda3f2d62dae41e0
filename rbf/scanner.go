package rbf

import (
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
)

// trailerAndFence is what ReadTrailerBefore reads: a trailer followed by the
// fence that closes its frame.
const trailerAndFence = frame.TrailerSize + frame.FenceSize

// ReadTrailerBefore decodes the frame that ends right before fenceEnd, the
// position just past a frame's closing fence. Only the trailer is validated.
func (f *File) ReadTrailerBefore(fenceEnd int64) (FrameInfo, error) {
	if err := f.checkOpen(); err != nil {
		return FrameInfo{}, err
	}
	if !frame.IsAligned(fenceEnd) || fenceEnd > f.tailOffset {
		return FrameInfo{}, core.FramingError("fence end %d is misaligned or beyond tail %d", fenceEnd, f.tailOffset).
			WithDetail(core.DetailOffset, fenceEnd)
	}
	if fenceEnd < frame.HeaderFenceSize+frame.MinFrameLength+frame.FenceSize {
		return FrameInfo{}, core.FramingError("no room for a frame before offset %d", fenceEnd).
			WithDetail(core.DetailOffset, fenceEnd)
	}

	var buf [trailerAndFence]byte
	if err := f.readFull(buf[:], fenceEnd-trailerAndFence); err != nil {
		return FrameInfo{}, err
	}
	if !frame.IsFence(buf[frame.TrailerSize:]) {
		return FrameInfo{}, core.FramingError("missing fence before offset %d", fenceEnd).
			WithDetail(core.DetailOffset, fenceEnd-frame.FenceSize)
	}
	tr, l, err := frame.DecodeTrailer(buf[:frame.TrailerSize])
	if err != nil {
		return FrameInfo{}, err
	}

	start := fenceEnd - frame.FenceSize - int64(tr.TailLen)
	if start < frame.HeaderFenceSize {
		return FrameInfo{}, core.FramingError("frame of %d bytes before offset %d would start inside the header", tr.TailLen, fenceEnd).
			WithDetail(core.DetailOffset, start).
			WithDetail(core.DetailLength, tr.TailLen)
	}
	t, err := frame.NewTicket(start, int(tr.TailLen))
	if err != nil {
		return FrameInfo{}, core.FramingError("frame before offset %d is not addressable", fenceEnd).WithCause(err)
	}
	return f.newFrameInfo(t, tr, l), nil
}

// ScanOption configures a reverse scan.
type ScanOption func(*ReverseScanner)

// WithTombstones makes the scan yield tombstoned frames too.
func WithTombstones() ScanOption {
	return func(s *ReverseScanner) { s.showTombstones = true }
}

// FromOffset starts the scan at fenceEnd instead of TailOffset.
func FromOffset(fenceEnd int64) ScanOption {
	return func(s *ReverseScanner) { s.offset = fenceEnd }
}

// ReverseScanner walks frames from the tail towards the header using only
// their trailers. A scan that hits a damaged frame stops there; everything
// yielded before it is still valid and Err reports why it stopped.
type ReverseScanner struct {
	file           *File
	showTombstones bool

	start   int64
	offset  int64
	current FrameInfo
	err     error
	done    bool

	frames     int
	tombstones int
	began      time.Time
	span       trace.Span
}

// ScanReverse returns a scanner positioned at the tail of the file.
func (f *File) ScanReverse(opts ...ScanOption) *ReverseScanner {
	s := &ReverseScanner{
		file:   f,
		offset: f.tailOffset,
		began:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.offset
	s.span = f.startSpan("RBF.ScanReverse",
		attribute.Int64("rbf.start_offset", s.start),
		attribute.Bool("rbf.show_tombstones", s.showTombstones),
	)
	return s
}

// Next advances to the preceding frame. It returns false at the header
// fence or on the first error.
func (s *ReverseScanner) Next() bool {
	for !s.done {
		if s.offset == frame.HeaderFenceSize {
			s.finish(nil)
			return false
		}
		info, err := s.file.ReadTrailerBefore(s.offset)
		if err != nil {
			s.finish(err)
			return false
		}
		s.offset = info.Ticket.Offset()
		if info.Tombstone {
			s.tombstones++
			if !s.showTombstones {
				continue
			}
		}
		s.frames++
		s.current = info
		return true
	}
	return false
}

// Info returns the frame Next stopped at.
func (s *ReverseScanner) Info() FrameInfo { return s.current }

// Err returns the error that ended the scan, or nil after a clean scan.
func (s *ReverseScanner) Err() error { return s.err }

// Offset is the fence-end position the next step reads before. After a
// failed scan it marks where the intact part of the file ends.
func (s *ReverseScanner) Offset() int64 { return s.offset }

// All returns the remaining frames as an iterator. Check Err afterwards.
func (s *ReverseScanner) All() iter.Seq[FrameInfo] {
	return func(yield func(FrameInfo) bool) {
		for s.Next() {
			if !yield(s.current) {
				return
			}
		}
	}
}

func (s *ReverseScanner) finish(err error) {
	s.done = true
	s.err = err
	s.current = FrameInfo{}
	f := s.file

	if s.span != nil {
		s.span.SetAttributes(
			attribute.Int("rbf.frames", s.frames),
			attribute.Int("rbf.tombstones", s.tombstones),
			attribute.Int64("rbf.stop_offset", s.offset),
		)
	}
	endSpan(s.span, err)

	if err != nil {
		f.logger.Warn("Reverse scan stopped early.", "start_offset", s.start, "stop_offset", s.offset, "frames", s.frames, "tombstones", s.tombstones, "error", err)
	} else {
		f.logger.Debug("Reverse scan complete.", "start_offset", s.start, "frames", s.frames, "tombstones", s.tombstones)
	}
	f.trigger(hooks.NewPostScanReverseEvent(hooks.PostScanReversePayload{
		Path:        f.path,
		StartOffset: s.start,
		StopOffset:  s.offset,
		Frames:      s.frames,
		Tombstones:  s.tombstones,
		Duration:    time.Since(s.began),
		Error:       err,
	}))
}
