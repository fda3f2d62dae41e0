package frame

import (
	"fmt"

	"github.com/INLOpen/rbf/core"
)

// Descriptor is the FrameDescriptor word of the trailer.
//
//	bit 31      tombstone
//	bits 30-29  padding length (0-3)
//	bits 28-16  reserved, must be zero
//	bits 15-0   tail-metadata length
type Descriptor uint32

const (
	tombstoneBit    Descriptor = 1 << 31
	paddingShift               = 29
	paddingMask     Descriptor = 0x3 << paddingShift
	reservedMask    Descriptor = 0x1FFF << 16
	tailMetaLenMask Descriptor = 0xFFFF
)

// NewDescriptor packs the descriptor fields. padding and tailMetaLength must
// already be in range; Layout guarantees that.
func NewDescriptor(tombstone bool, padding, tailMetaLength int) Descriptor {
	d := Descriptor(padding&0x3)<<paddingShift | Descriptor(tailMetaLength)&tailMetaLenMask
	if tombstone {
		d |= tombstoneBit
	}
	return d
}

// IsTombstone reports whether the frame is logically deleted.
func (d Descriptor) IsTombstone() bool { return d&tombstoneBit != 0 }

// PaddingLength returns the padding length field.
func (d Descriptor) PaddingLength() int { return int((d & paddingMask) >> paddingShift) }

// TailMetaLength returns the tail-metadata length field.
func (d Descriptor) TailMetaLength() int { return int(d & tailMetaLenMask) }

// Reserved returns bits 28-16 shifted down.
func (d Descriptor) Reserved() uint32 { return uint32((d & reservedMask) >> 16) }

// Validate rejects descriptors with reserved bits set; those come from a
// newer format version or from corruption.
func (d Descriptor) Validate() error {
	if d&reservedMask != 0 {
		return core.FramingError("frame descriptor has reserved bits set").
			WithDetail("descriptor", fmt.Sprintf("0x%08x", uint32(d))).
			WithHint("the file was written by a newer format version or is corrupt")
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor{tombstone=%t padding=%d tailMeta=%d}", d.IsTombstone(), d.PaddingLength(), d.TailMetaLength())
}
