package frame

import "github.com/INLOpen/rbf/core"

// Layout is the arithmetic shape of one frame, derived from the payload and
// tail-metadata lengths alone.
type Layout struct {
	payloadLength  int
	tailMetaLength int
	paddingLength  int
}

// PaddingFor returns the number of zero bytes that bring n up to Alignment.
func PaddingFor(n int) int {
	return (Alignment - n%Alignment) % Alignment
}

// NewLayout computes the layout of a frame with the given lengths.
func NewLayout(payloadLength, tailMetaLength int) (Layout, error) {
	if payloadLength < 0 {
		return Layout{}, core.ArgumentError("negative payload length %d", payloadLength)
	}
	if tailMetaLength < 0 {
		return Layout{}, core.ArgumentError("negative tail metadata length %d", tailMetaLength)
	}
	if tailMetaLength > MaxTailMetaLength {
		return Layout{}, core.ArgumentError("tail metadata length %d exceeds %d", tailMetaLength, MaxTailMetaLength)
	}
	// Bound each term before adding so the sum cannot overflow int.
	if payloadLength > MaxTicketLength {
		return Layout{}, core.ArgumentError("payload length %d exceeds maximum frame length %d", payloadLength, MaxTicketLength)
	}
	l := Layout{
		payloadLength:  payloadLength,
		tailMetaLength: tailMetaLength,
		paddingLength:  PaddingFor(payloadLength + tailMetaLength),
	}
	if l.FrameLength() > MaxTicketLength {
		return Layout{}, core.ArgumentError("frame length %d exceeds maximum %d", l.FrameLength(), MaxTicketLength)
	}
	return l, nil
}

// LayoutFromTrailer rebuilds the layout from TailLen and the descriptor. An
// aligned TailLen always implies the recorded padding, so only the lengths
// are checked.
func LayoutFromTrailer(tailLen int, d Descriptor) (Layout, error) {
	if tailLen < MinFrameLength || tailLen%Alignment != 0 || tailLen > MaxTicketLength {
		return Layout{}, core.FramingError("trailer length %d is out of range or misaligned", tailLen).
			WithDetail(core.DetailLength, tailLen)
	}
	tailMeta := d.TailMetaLength()
	padding := d.PaddingLength()
	payload := tailLen - MinFrameLength - tailMeta - padding
	if payload < 0 {
		return Layout{}, core.FramingError("descriptor lengths exceed frame length %d", tailLen).
			WithDetail(core.DetailLength, tailLen)
	}
	return Layout{payloadLength: payload, tailMetaLength: tailMeta, paddingLength: padding}, nil
}

// PayloadLength returns N.
func (l Layout) PayloadLength() int { return l.payloadLength }

// TailMetaLength returns M.
func (l Layout) TailMetaLength() int { return l.tailMetaLength }

// PaddingLength returns the number of zero bytes after the tail metadata.
func (l Layout) PaddingLength() int { return l.paddingLength }

// DataLength is payload plus tail metadata.
func (l Layout) DataLength() int { return l.payloadLength + l.tailMetaLength }

// BodyLength is the range covered by PayloadCrc: payload, tail metadata and padding.
func (l Layout) BodyLength() int { return l.payloadLength + l.tailMetaLength + l.paddingLength }

// FrameLength is the full on-disk length, HeadLen through trailer.
func (l Layout) FrameLength() int { return HeadLenSize + l.BodyLength() + PayloadCrcSize + TrailerSize }

// PayloadOffset is the payload position relative to the frame start.
func (l Layout) PayloadOffset() int { return HeadLenSize }

// TailMetaOffset is the tail-metadata position relative to the frame start.
func (l Layout) TailMetaOffset() int { return HeadLenSize + l.payloadLength }

// PaddingOffset is the padding position relative to the frame start.
func (l Layout) PaddingOffset() int { return HeadLenSize + l.DataLength() }

// PayloadCrcOffset is the PayloadCrc32 position relative to the frame start.
func (l Layout) PayloadCrcOffset() int { return HeadLenSize + l.BodyLength() }

// TrailerOffset is the trailer position relative to the frame start.
func (l Layout) TrailerOffset() int { return l.PayloadCrcOffset() + PayloadCrcSize }

// Descriptor packs this layout into a frame descriptor.
func (l Layout) Descriptor(tombstone bool) Descriptor {
	return NewDescriptor(tombstone, l.paddingLength, l.tailMetaLength)
}
