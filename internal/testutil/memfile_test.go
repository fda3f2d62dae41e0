package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFile_PositionalIO(t *testing.T) {
	m := NewMemFile("mem.rbf")

	n, err := m.WriteAt([]byte("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(8), m.Len())
	assert.Equal(t, []byte{0, 0, 0, 0, 'a', 'b', 'c', 'd'}, m.Bytes())

	buf := make([]byte, 6)
	n, err = m.ReadAt(buf, 4)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 4, n)

	require.NoError(t, m.Truncate(2))
	info, err := m.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
	assert.Equal(t, "mem.rbf", info.Name())

	assert.Equal(t, 1, m.Writes())
	assert.Equal(t, 1, m.Reads())
	m.ResetCounters()
	assert.Equal(t, 0, m.Writes())
}

func TestMemFile_FaultInjection(t *testing.T) {
	t.Run("FailWritesAfter", func(t *testing.T) {
		m := NewMemFile("f")
		m.FailWritesAfter(1)
		_, err := m.WriteAt([]byte("ok"), 0)
		require.NoError(t, err)
		_, err = m.WriteAt([]byte("no"), 2)
		assert.ErrorIs(t, err, ErrInjected)
		assert.Equal(t, int64(2), m.Len())
	})

	t.Run("ShortWrites", func(t *testing.T) {
		m := NewMemFile("f")
		m.SetShortWrites(true)
		n, err := m.WriteAt([]byte("12345678"), 0)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("ShortReads", func(t *testing.T) {
		m := NewMemFileWith("f", []byte("12345678"))
		m.SetShortReads(true)
		n, err := m.ReadAt(make([]byte, 8), 0)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("Closed", func(t *testing.T) {
		m := NewMemFile("f")
		require.NoError(t, m.Close())
		assert.True(t, m.Closed())
		_, err := m.WriteAt([]byte("x"), 0)
		assert.ErrorIs(t, err, os.ErrClosed)
	})
}

func TestCorruptByteAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x0F}, 0644))

	CorruptByteAt(t, path, 1)
	AppendRaw(t, path, []byte{0xAA})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xF0, 0xAA}, data)
	assert.Equal(t, int64(3), FileSize(t, path))
}
