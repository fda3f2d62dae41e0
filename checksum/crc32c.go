// Package checksum implements the incremental CRC32C (Castagnoli, reflected)
// used by every RBF frame. Callers thread a State through any number of
// Update calls so the result does not depend on how the covered bytes were
// split across writes.
package checksum

import "hash/crc32"

// castagnoli is the iSCSI polynomial table. hash/crc32 picks the SSE4.2 or
// ARMv8 CRC instructions for this table when the CPU has them and falls back
// to slicing-by-8 otherwise.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const (
	initialValue uint32 = 0xFFFFFFFF
	finalXor     uint32 = 0xFFFFFFFF
)

// State is the running, not yet finalized CRC register.
type State uint32

// Init returns the register value every checksum starts from.
func Init() State {
	return State(initialValue)
}

// Update folds p into the register.
func (s State) Update(p []byte) State {
	if len(p) == 0 {
		return s
	}
	// crc32.Update works on finalized values, so un-finalize on the way in
	// and re-finalize on the way out.
	return State(^crc32.Update(^uint32(s), castagnoli, p))
}

// Finalize applies the closing XOR and returns the checksum.
func (s State) Finalize() uint32 {
	return uint32(s) ^ finalXor
}

// Compute returns the CRC32C of p in one call.
func Compute(p []byte) uint32 {
	return crc32.Checksum(p, castagnoli)
}

// ComputeParts returns the CRC32C of the concatenation of parts.
func ComputeParts(parts ...[]byte) uint32 {
	s := Init()
	for _, p := range parts {
		s = s.Update(p)
	}
	return s.Finalize()
}
