package checksum

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_KnownVectors(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
		want  uint32
	}{
		{name: "empty", input: nil, want: 0x00000000},
		{name: "check string", input: []byte("123456789"), want: 0xE3069283},
		{name: "32 zero bytes", input: make([]byte, 32), want: 0x8A9136AA},
		{name: "32 0xFF bytes", input: bytes.Repeat([]byte{0xFF}, 32), want: 0x62A8AB43},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compute(tc.input))
			assert.Equal(t, tc.want, Init().Update(tc.input).Finalize())
		})
	}
}

func TestState_IncrementalMatchesOneShot(t *testing.T) {
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	want := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))

	// Split points chosen to straddle 8-, 4- and 1-byte chunk boundaries.
	for _, split := range []int{0, 1, 3, 4, 7, 8, 9, 4095, 4096, 9999, 10_000} {
		s := Init().Update(data[:split]).Update(data[split:])
		require.Equal(t, want, s.Finalize(), "split at %d", split)
	}

	assert.Equal(t, want, ComputeParts(data[:17], data[17:100], nil, data[100:]))
}

func TestState_EmptyUpdateIsIdentity(t *testing.T) {
	s := Init().Update([]byte("abc"))
	assert.Equal(t, s, s.Update(nil))
	assert.Equal(t, s, s.Update([]byte{}))
}
