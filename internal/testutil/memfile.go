package testutil

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/INLOpen/rbf/sys"
)

// ErrInjected is returned by MemFile operations failed on purpose.
var ErrInjected = errors.New("testutil: injected failure")

var _ sys.FileHandle = (*MemFile)(nil)

// MemFile is an in-memory sys.FileHandle with fault injection. It counts
// every call so tests can assert on the exact I/O a component issues.
type MemFile struct {
	mu     sync.Mutex
	name   string
	data   []byte
	closed bool

	writes    int
	reads     int
	syncs     int
	truncates int

	failWritesAfter int
	shortWrites     bool
	shortReads      bool
	failTruncate    bool
}

// NewMemFile returns an empty MemFile.
func NewMemFile(name string) *MemFile {
	return &MemFile{name: name, failWritesAfter: -1}
}

// NewMemFileWith returns a MemFile holding a copy of data.
func NewMemFileWith(name string, data []byte) *MemFile {
	m := NewMemFile(name)
	m.data = append([]byte(nil), data...)
	return m
}

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	m.reads++
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	want := p
	if m.shortReads && len(p) > 1 {
		want = p[:len(p)/2]
	}
	n := copy(want, m.data[off:])
	if n < len(p) && !m.shortReads {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	m.writes++
	if m.failWritesAfter >= 0 && m.writes > m.failWritesAfter {
		return 0, ErrInjected
	}
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if m.shortWrites && len(p) > 1 {
		p = p[:len(p)/2]
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[off:], p)
	return len(p), nil
}

func (m *MemFile) Stat() (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, os.ErrClosed
	}
	return memFileInfo{name: m.name, size: int64(len(m.data))}, nil
}

func (m *MemFile) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return os.ErrClosed
	}
	m.syncs++
	return nil
}

func (m *MemFile) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return os.ErrClosed
	}
	m.truncates++
	if m.failTruncate {
		return ErrInjected
	}
	if size < 0 {
		return os.ErrInvalid
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
	} else {
		m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	}
	return nil
}

func (m *MemFile) Name() string { return m.name }

func (m *MemFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return os.ErrClosed
	}
	m.closed = true
	return nil
}

// FailWritesAfter makes every write after the first n fail with
// ErrInjected. A negative n turns the fault off.
func (m *MemFile) FailWritesAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWritesAfter = n
}

// SetShortWrites makes writes store only half of what they are given while
// reporting no error.
func (m *MemFile) SetShortWrites(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortWrites = on
}

// SetShortReads makes reads return half of what was asked with a nil error.
func (m *MemFile) SetShortReads(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortReads = on
}

// SetFailTruncate makes Truncate fail with ErrInjected.
func (m *MemFile) SetFailTruncate(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTruncate = on
}

// Bytes returns a copy of the contents.
func (m *MemFile) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Len returns the current length.
func (m *MemFile) Len() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data))
}

// FlipByte inverts every bit of the byte at off.
func (m *MemFile) FlipByte(off int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[off] ^= 0xFF
}

// PutBytes overwrites the contents at off without counting as a write.
func (m *MemFile) PutBytes(off int64, p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.data[off:], p)
}

// Writes returns the number of WriteAt calls so far.
func (m *MemFile) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Reads returns the number of ReadAt calls so far.
func (m *MemFile) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Syncs returns the number of Sync calls so far.
func (m *MemFile) Syncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// ResetCounters zeroes the call counters.
func (m *MemFile) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes, m.reads, m.syncs, m.truncates = 0, 0, 0, 0
}

// Closed reports whether Close has been called.
func (m *MemFile) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type memFileInfo struct {
	name string
	size int64
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() os.FileMode  { return 0644 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }
