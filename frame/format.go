package frame

import "encoding/binary"

const (
	// FenceSize is the length of the "RBF1" marker.
	FenceSize = 4
	// HeadLenSize is the length of the leading frame length field.
	HeadLenSize = 4
	// PayloadCrcSize is the length of the PayloadCrc32 field.
	PayloadCrcSize = 4
	// TrailerSize is the fixed length of the trailer codeword.
	TrailerSize = 16
	// Alignment is the boundary every frame start and the file end sit on.
	Alignment = 4
	// MinFrameLength is the length of a frame with no payload and no tail metadata.
	MinFrameLength = HeadLenSize + PayloadCrcSize + TrailerSize
	// MaxTailMetaLength is the largest tail-metadata length the descriptor can hold.
	MaxTailMetaLength = 0xFFFF
	// HeaderFenceSize is the length of the fence that opens every file.
	HeaderFenceSize = FenceSize
	// SuffixSize is the fixed part following the padding: PayloadCrc, trailer and fence.
	SuffixSize = PayloadCrcSize + TrailerSize + FenceSize
)

// Fence is the 4-byte marker delimiting the file header and every frame.
var Fence = [FenceSize]byte{'R', 'B', 'F', '1'}

// IsFence reports whether b starts with the fence bytes.
func IsFence(b []byte) bool {
	return len(b) >= FenceSize && b[0] == Fence[0] && b[1] == Fence[1] && b[2] == Fence[2] && b[3] == Fence[3]
}

// PutFence writes the fence into dst and returns FenceSize.
func PutFence(dst []byte) int {
	return copy(dst[:FenceSize], Fence[:])
}

// PutHeadLen writes the leading frame length field.
func PutHeadLen(dst []byte, frameLength int) {
	binary.LittleEndian.PutUint32(dst[:HeadLenSize], uint32(frameLength))
}

// HeadLen reads the leading frame length field.
func HeadLen(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src[:HeadLenSize])
}

// IsAligned reports whether n sits on the frame alignment boundary.
func IsAligned(n int64) bool {
	return n%Alignment == 0
}
