// Package frame holds the pure, I/O-free parts of the RBF format: fence
// constants, frame layout arithmetic, the frame descriptor bit field, the
// 16-byte trailer codec and the compact frame ticket.
//
// On-disk frame:
//
//	HeadLen(4) | Payload(N) | TailMeta(M) | Padding(0-3) | PayloadCrc32(4) | Trailer(16)
//
// Trailer:
//
//	TrailerCrc32(4, BE) | FrameDescriptor(4) | FrameTag(4) | TailLen(4)
//
// Every multi-byte integer is little-endian except TrailerCrc32, which is
// stored big-endian for compatibility with existing files.
package frame
