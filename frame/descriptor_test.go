package frame

import (
	"testing"

	"github.com/INLOpen/rbf/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Fields(t *testing.T) {
	d := NewDescriptor(true, 3, 0xABCD)
	assert.True(t, d.IsTombstone())
	assert.Equal(t, 3, d.PaddingLength())
	assert.Equal(t, 0xABCD, d.TailMetaLength())
	assert.Zero(t, d.Reserved())
	assert.Equal(t, Descriptor(0x8000_0000|0x6000_0000|0xABCD), d)
	require.NoError(t, d.Validate())

	plain := NewDescriptor(false, 0, 0)
	assert.False(t, plain.IsTombstone())
	assert.Equal(t, Descriptor(0), plain)
}

func TestDescriptor_ReservedBitsRejected(t *testing.T) {
	for bit := 16; bit <= 28; bit++ {
		d := NewDescriptor(false, 1, 7) | Descriptor(1)<<bit
		err := d.Validate()
		require.Error(t, err, "bit %d", bit)
		assert.True(t, core.IsFramingError(err), "bit %d", bit)
	}
}
