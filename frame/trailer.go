package frame

import (
	"encoding/binary"

	"github.com/INLOpen/rbf/checksum"
	"github.com/INLOpen/rbf/core"
)

// Trailer field offsets inside the 16-byte codeword.
const (
	trailerCrcOffset        = 0
	trailerDescriptorOffset = 4
	trailerTagOffset        = 8
	trailerTailLenOffset    = 12
)

// Trailer is the decoded 16-byte codeword that closes every frame.
type Trailer struct {
	Crc        uint32
	Descriptor Descriptor
	Tag        uint32
	TailLen    uint32
}

// EncodeTrailer writes the trailer codeword into dst[:TrailerSize] and
// returns the TrailerCrc32. The checksum covers descriptor, tag and TailLen
// only and is stored big-endian.
func EncodeTrailer(dst []byte, d Descriptor, tag uint32, tailLen int) uint32 {
	dst = dst[:TrailerSize]
	binary.LittleEndian.PutUint32(dst[trailerDescriptorOffset:], uint32(d))
	binary.LittleEndian.PutUint32(dst[trailerTagOffset:], tag)
	binary.LittleEndian.PutUint32(dst[trailerTailLenOffset:], uint32(tailLen))
	crc := checksum.Compute(dst[trailerDescriptorOffset:])
	binary.BigEndian.PutUint32(dst[trailerCrcOffset:], crc)
	return crc
}

// DecodeTrailer parses and validates a trailer codeword (tier L2): it checks
// TrailerCrc32, the reserved descriptor bits, the range and alignment of
// TailLen and the consistency of the recorded padding.
func DecodeTrailer(src []byte) (Trailer, Layout, error) {
	if len(src) < TrailerSize {
		return Trailer{}, Layout{}, core.FramingError("trailer needs %d bytes, got %d", TrailerSize, len(src))
	}
	src = src[:TrailerSize]
	t := Trailer{
		Crc:        binary.BigEndian.Uint32(src[trailerCrcOffset:]),
		Descriptor: Descriptor(binary.LittleEndian.Uint32(src[trailerDescriptorOffset:])),
		Tag:        binary.LittleEndian.Uint32(src[trailerTagOffset:]),
		TailLen:    binary.LittleEndian.Uint32(src[trailerTailLenOffset:]),
	}
	if actual := checksum.Compute(src[trailerDescriptorOffset:]); actual != t.Crc {
		return Trailer{}, Layout{}, core.CrcMismatchError(core.ChecksumTrailer, t.Crc, actual)
	}
	if err := t.Descriptor.Validate(); err != nil {
		return Trailer{}, Layout{}, err
	}
	if uint64(t.TailLen) > uint64(MaxTicketLength) {
		return Trailer{}, Layout{}, core.FramingError("trailer length %d exceeds maximum %d", t.TailLen, MaxTicketLength)
	}
	l, err := LayoutFromTrailer(int(t.TailLen), t.Descriptor)
	if err != nil {
		return Trailer{}, Layout{}, err
	}
	return t, l, nil
}

// PutPayloadCrc writes the PayloadCrc32 field.
func PutPayloadCrc(dst []byte, crc uint32) {
	binary.LittleEndian.PutUint32(dst[:PayloadCrcSize], crc)
}

// PayloadCrc reads the PayloadCrc32 field.
func PayloadCrc(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src[:PayloadCrcSize])
}

// PutSuffix writes everything that follows the frame data: padding zeros,
// PayloadCrc32, trailer and the closing fence. state must already cover the
// payload and tail metadata; the padding is folded in here. It returns the
// number of bytes written (l.PaddingLength() + SuffixSize) and the
// finalized PayloadCrc32.
func PutSuffix(dst []byte, l Layout, state checksum.State, d Descriptor, tag uint32) (int, uint32) {
	n := l.PaddingLength()
	clear(dst[:n])
	payloadCrc := state.Update(dst[:n]).Finalize()
	PutPayloadCrc(dst[n:], payloadCrc)
	n += PayloadCrcSize
	EncodeTrailer(dst[n:], d, tag, l.FrameLength())
	n += TrailerSize
	n += PutFence(dst[n:])
	return n, payloadCrc
}
