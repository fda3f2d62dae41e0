package frame

import (
	"fmt"

	"github.com/INLOpen/rbf/core"
)

const (
	ticketLengthBits = 28
	ticketOffsetBits = 64 - ticketLengthBits
	ticketLengthMask = 1<<ticketLengthBits - 1

	// MaxTicketLength is the largest frame length a ticket can address (~1 GiB).
	MaxTicketLength = ticketLengthMask * Alignment
	// MaxTicketOffset is the largest frame offset a ticket can address (~256 GiB).
	MaxTicketOffset int64 = (1<<ticketOffsetBits - 1) * Alignment
)

// Ticket is the compact (offset, length) handle of one frame. Both values
// are multiples of Alignment, so they are stored divided by it: offset/4 in
// the high 36 bits, length/4 in the low 28 bits.
type Ticket uint64

// NewTicket validates and packs a frame position.
func NewTicket(offset int64, length int) (Ticket, error) {
	if offset < 0 || offset > MaxTicketOffset || offset%Alignment != 0 {
		return 0, core.ArgumentError("ticket offset %d is negative, misaligned or beyond %d", offset, MaxTicketOffset).
			WithDetail(core.DetailOffset, offset)
	}
	if length < 0 || length > MaxTicketLength || length%Alignment != 0 {
		return 0, core.ArgumentError("ticket length %d is negative, misaligned or beyond %d", length, MaxTicketLength).
			WithDetail(core.DetailLength, length)
	}
	return Ticket(uint64(offset/Alignment)<<ticketLengthBits | uint64(length/Alignment)), nil
}

// Offset is the absolute file position of the frame's HeadLen field.
func (t Ticket) Offset() int64 { return int64(t>>ticketLengthBits) * Alignment }

// Length is the full frame length, HeadLen through trailer.
func (t Ticket) Length() int { return int(t&ticketLengthMask) * Alignment }

// End is the position immediately after the trailer, where the frame's
// closing fence starts.
func (t Ticket) End() int64 { return t.Offset() + int64(t.Length()) }

// IsZero reports whether t is the zero ticket, which addresses no frame.
func (t Ticket) IsZero() bool { return t == 0 }

func (t Ticket) String() string {
	return fmt.Sprintf("Ticket{offset=%d length=%d}", t.Offset(), t.Length())
}
