package sys

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFile implements File for testing. It delegates to the real OS file
// operations but records which methods were called.
type mockFile struct {
	OpenFileCalled bool
	RemoveCalled   bool
}

func (m *mockFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	m.OpenFileCalled = true
	return os.OpenFile(name, flag, perm)
}

func (m *mockFile) Remove(name string) error {
	m.RemoveCalled = true
	return os.Remove(name)
}

func TestOpenFile_PositionalReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positional.bin")

	h, err := OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteAt([]byte("WORLD"), 6)
	require.NoError(t, err)
	_, err = h.WriteAt([]byte("HELLO "), 0)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := h.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "WORLD", string(buf))

	// Reading past the end reports io.EOF with a short count.
	n, err = h.ReadAt(make([]byte, 8), 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, n)

	require.NoError(t, h.Truncate(4))
	info, err := h.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
	assert.Equal(t, path, h.Name())

	require.NoError(t, Datasync(h))
}

func TestSetDefaultFile(t *testing.T) {
	mock := &mockFile{}
	SetDefaultFile(mock)
	defer SetDefaultFile(NewFile())

	path := filepath.Join(t.TempDir(), "mock.bin")
	h, err := OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.True(t, mock.OpenFileCalled)

	require.NoError(t, Remove(path))
	assert.True(t, mock.RemoveCalled)
}

func TestRemove_MissingFileIsNotAnError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "missing")))
}

func TestDebugMode(t *testing.T) {
	var logBuf bytes.Buffer
	SetDebugLogger(slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	SetDebugMode(true)
	defer func() {
		SetDebugMode(false)
		SetDebugLogger(nil)
	}()

	path := filepath.Join(t.TempDir(), "debug.bin")
	h, err := OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	df, ok := h.(*DebugFile)
	require.True(t, ok, "debug mode must produce a DebugFile")
	assert.Contains(t, OpenDebugHandles(), df.id)

	_, err = h.WriteAt([]byte("abcd"), 0)
	require.NoError(t, err)
	_, err = h.ReadAt(make([]byte, 4), 0)
	require.NoError(t, err)
	require.NoError(t, Datasync(h))

	require.NoError(t, h.Close())
	assert.NotContains(t, OpenDebugHandles(), df.id)

	logs := logBuf.String()
	assert.Contains(t, logs, "WriteAt")
	assert.Contains(t, logs, "ReadAt")
	assert.Contains(t, logs, "Closing file")
}

func TestPreallocate_KeepsVisibleSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prealloc.bin")
	h, err := OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteAt([]byte("RBF1"), 0)
	require.NoError(t, err)

	require.NoError(t, Preallocate(h, 0))

	before := GetPreallocStats()
	err = Preallocate(h, 1<<20)
	if err != nil {
		require.True(t, errors.Is(err, ErrPreallocNotSupported), "unexpected error: %v", err)
	}
	after := GetPreallocStats()
	assert.Equal(t,
		before.Successes+before.Failures+before.Unsupported+1,
		after.Successes+after.Failures+after.Unsupported)

	info, err := h.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size(), "preallocation must not change the visible length")
}
