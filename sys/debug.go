package sys

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var _ FileHandle = (*DebugFile)(nil)
var nextID atomic.Uint64

var listFD *sync.Map = new(sync.Map)

var debugLogger atomic.Pointer[slog.Logger]

// SetDebugLogger sets the logger DebugFile handles write to. A nil logger
// restores the default stderr debug logger.
func SetDebugLogger(logger *slog.Logger) {
	debugLogger.Store(logger)
}

func currentDebugLogger() *slog.Logger {
	if l := debugLogger.Load(); l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// DebugFile is a FileHandle that logs every positional operation.
type DebugFile struct {
	id     uint64
	f      *os.File
	logger *slog.Logger
}

func DOpenFile(sysFile File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := sysFile.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	id := nextID.Add(1)
	logger := currentDebugLogger().With("component", "DebugFile", "id", id, "file_name", name)
	logger.Debug("Opening file")
	listFD.Store(id, f.Name())

	return &DebugFile{
		id:     id,
		f:      f,
		logger: logger,
	}, nil
}

func (df *DebugFile) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = df.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		df.logger.Debug("ReadAt failed", "offset", off, "len", len(p), "n", n, "error", err)
	} else {
		df.logger.Debug("ReadAt", "offset", off, "len", len(p), "n", n)
	}
	return n, err
}

func (df *DebugFile) WriteAt(p []byte, off int64) (n int, err error) {
	n, err = df.f.WriteAt(p, off)
	df.logger.Debug("WriteAt", "offset", off, "len", len(p), "n", n, "error", err)
	return n, err
}

func (df *DebugFile) Stat() (os.FileInfo, error) {
	return df.f.Stat()
}

func (df *DebugFile) Sync() error {
	df.logger.Debug("Sync")
	return df.f.Sync()
}

func (df *DebugFile) Truncate(size int64) error {
	df.logger.Debug("Truncate", "size", size)
	return df.f.Truncate(size)
}

func (df *DebugFile) Name() string {
	return df.f.Name()
}

func (df *DebugFile) Fd() uintptr {
	return df.f.Fd()
}

func (df *DebugFile) Close() error {
	df.logger.Debug("Closing file")
	listFD.Delete(df.id)
	return df.f.Close()
}

// OpenDebugHandles returns the names of DebugFile handles that are still
// open, keyed by handle id.
func OpenDebugHandles() map[uint64]string {
	out := make(map[uint64]string)
	listFD.Range(func(key, value any) bool {
		out[key.(uint64)] = value.(string)
		return true
	})
	return out
}
