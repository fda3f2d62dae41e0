package rbf

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
	"github.com/INLOpen/rbf/sys"
)

// File is an open RBF file. It owns the positional handle, the logical end
// offset, and the epoch that invalidates stale Builders.
type File struct {
	path   string
	handle sys.FileHandle
	opts   Options

	logger      *slog.Logger
	tracer      trace.Tracer
	hookManager hooks.HookManager
	pool        core.BytePool

	metricsBytesWritten  *expvar.Int
	metricsFramesWritten *expvar.Int

	tailOffset int64
	epoch      uint64
	building   bool
	closed     bool
	readOnly   bool

	// scratch backs the single-call append path.
	scratch []byte

	releaseLock func() error
}

// Create creates path, truncating any existing file, and writes the header
// fence.
func Create(path string, opts Options) (*File, error) {
	if opts.ReadOnly {
		return nil, core.ArgumentError("cannot create %s read-only", path)
	}
	release, err := acquireLock(path, opts)
	if err != nil {
		return nil, err
	}

	handle, err := sys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		releaseQuietly(release)
		return nil, fmt.Errorf("failed to create rbf file %s: %w", path, err)
	}

	f, err := newFile(handle, path, true, opts)
	if err != nil {
		handle.Close()
		releaseQuietly(release)
		return nil, err
	}
	f.releaseLock = release
	f.preallocate()
	f.afterOpen(true)
	return f, nil
}

// Open opens an existing RBF file. TailOffset starts at the file length.
func Open(path string, opts Options) (*File, error) {
	release, err := acquireLock(path, opts)
	if err != nil {
		return nil, err
	}

	flag := os.O_RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	handle, err := sys.OpenFile(path, flag, 0644)
	if err != nil {
		releaseQuietly(release)
		return nil, fmt.Errorf("failed to open rbf file %s: %w", path, err)
	}

	f, err := newFile(handle, path, false, opts)
	if err != nil {
		handle.Close()
		releaseQuietly(release)
		return nil, err
	}
	f.releaseLock = release
	if !f.readOnly {
		f.preallocate()
	}
	f.afterOpen(false)
	return f, nil
}

// NewFile attaches to an already open handle. An empty handle receives the
// header fence unless opts.ReadOnly is set. Closing the File closes the
// handle. ExclusiveLock and PreallocateBytes are not applied.
func NewFile(handle sys.FileHandle, opts Options) (*File, error) {
	info, err := handle.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat rbf handle %s: %w", handle.Name(), err)
	}
	create := info.Size() == 0 && !opts.ReadOnly
	f, err := newFile(handle, handle.Name(), create, opts)
	if err != nil {
		return nil, err
	}
	f.afterOpen(create)
	return f, nil
}

func newFile(handle sys.FileHandle, path string, create bool, opts Options) (*File, error) {
	opts.applyDefaults()
	f := &File{
		path:                 path,
		handle:               handle,
		opts:                 opts,
		logger:               opts.Logger.With("path", path),
		tracer:               opts.Tracer,
		hookManager:          opts.HookManager,
		pool:                 opts.BufferPool,
		metricsBytesWritten:  opts.BytesWritten,
		metricsFramesWritten: opts.FramesWritten,
		readOnly:             opts.ReadOnly,
	}
	if !f.readOnly {
		f.scratch = make([]byte, appendScratchSize)
	}

	if create {
		var header [frame.HeaderFenceSize]byte
		frame.PutFence(header[:])
		if err := f.writeAt(header[:], 0); err != nil {
			return nil, fmt.Errorf("failed to write header fence: %w", err)
		}
		f.tailOffset = frame.HeaderFenceSize
		return f, nil
	}

	info, err := handle.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat rbf file %s: %w", path, err)
	}
	size := info.Size()
	if size < frame.HeaderFenceSize {
		return nil, core.FramingError("file is %d bytes, shorter than the header fence", size).
			WithDetail(core.DetailLength, size)
	}
	var header [frame.HeaderFenceSize]byte
	if err := f.readFull(header[:], 0); err != nil {
		return nil, err
	}
	if !frame.IsFence(header[:]) {
		return nil, core.FramingError("missing header fence").
			WithDetail(core.DetailOffset, 0).
			WithHint("not an RBF file")
	}
	if !frame.IsAligned(size) {
		// A torn append can leave a ragged tail. Scanning from the last
		// aligned position still recovers every complete frame below it.
		aligned := size - size%frame.Alignment
		f.logger.Warn("File length is not aligned; ignoring ragged tail.", "size", size, "tail_offset", aligned)
		size = aligned
	}
	f.tailOffset = size
	return f, nil
}

func (f *File) afterOpen(created bool) {
	f.logger.Info("RBF file opened.", "created", created, "tail_offset", f.tailOffset, "read_only", f.readOnly)
	f.trigger(hooks.NewPostFileOpenEvent(hooks.FileLifecyclePayload{
		Path:       f.path,
		TailOffset: f.tailOffset,
		Created:    created,
		ReadOnly:   f.readOnly,
	}))
}

func acquireLock(path string, opts Options) (func() error, error) {
	if !opts.ExclusiveLock {
		return nil, nil
	}
	release, err := sys.AcquireOSFileLock(path+".lock", opts.LockTimeout)
	if err != nil {
		if errors.Is(err, sys.ErrLocked) {
			return nil, core.StateError("%s is held by another writer", path).WithCause(err)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return release, nil
}

func releaseQuietly(release func() error) {
	if release != nil {
		_ = release()
	}
}

func (f *File) preallocate() {
	if f.opts.PreallocateBytes <= 0 {
		return
	}
	if err := sys.Preallocate(f.handle, f.opts.PreallocateBytes); err != nil {
		if errors.Is(err, sys.ErrPreallocNotSupported) {
			f.logger.Debug("Preallocation not supported.", "bytes", f.opts.PreallocateBytes)
			return
		}
		f.logger.Warn("Preallocation failed.", "bytes", f.opts.PreallocateBytes, "error", err)
	}
}

// Path returns the file name the File was opened with.
func (f *File) Path() string { return f.path }

// TailOffset is the logical end of the file: the position the next frame
// will be written at. It is always a multiple of 4.
func (f *File) TailOffset() int64 { return f.tailOffset }

// ReadOnly reports whether the File was opened without write access.
func (f *File) ReadOnly() bool { return f.readOnly }

func (f *File) checkOpen() error {
	if f.closed {
		return core.StateError("file %s is closed", f.path)
	}
	return nil
}

func (f *File) checkWritable() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return core.StateError("file %s is read-only", f.path)
	}
	return nil
}

// Truncate cuts the file at newLength, which must be a frame boundary at or
// below TailOffset. No frame validation is performed.
func (f *File) Truncate(newLength int64) (err error) {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if f.building {
		return core.StateError("cannot truncate while a builder is active")
	}
	if newLength < frame.HeaderFenceSize || !frame.IsAligned(newLength) || newLength > f.tailOffset {
		return core.ArgumentError("truncate length %d must be aligned and within [%d, %d]", newLength, frame.HeaderFenceSize, f.tailOffset).
			WithDetail(core.DetailLength, newLength)
	}

	span := f.startSpan("RBF.Truncate", attribute.Int64("rbf.new_length", newLength), attribute.Int64("rbf.old_length", f.tailOffset))
	defer func() { endSpan(span, err) }()

	if err := f.handle.Truncate(newLength); err != nil {
		return fmt.Errorf("failed to truncate %s to %d: %w", f.path, newLength, err)
	}
	old := f.tailOffset
	f.tailOffset = newLength
	f.logger.Info("RBF file truncated.", "old_length", old, "new_length", newLength)
	f.trigger(hooks.NewPostTruncateEvent(hooks.PostTruncatePayload{Path: f.path, OldLength: old, NewLength: newLength}))
	return nil
}

// DurableFlush forces written frames to stable storage.
func (f *File) DurableFlush() (err error) {
	if err := f.checkOpen(); err != nil {
		return err
	}
	span := f.startSpan("RBF.DurableFlush", attribute.Int64("rbf.tail_offset", f.tailOffset))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	err = sys.Datasync(f.handle)
	if err != nil {
		err = fmt.Errorf("failed to flush %s: %w", f.path, err)
		f.logger.Error("Durable flush failed.", "error", err)
	}
	f.trigger(hooks.NewPostDurableFlushEvent(hooks.PostDurableFlushPayload{
		Path:       f.path,
		TailOffset: f.tailOffset,
		Duration:   time.Since(start),
		Error:      err,
	}))
	return err
}

// Close closes the handle. Any Builder still open becomes stale. Close is
// idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.epoch++
	f.building = false

	closeErr := f.handle.Close()
	if f.releaseLock != nil {
		if err := f.releaseLock(); err != nil {
			f.logger.Warn("Failed to release file lock.", "error", err)
		}
		f.releaseLock = nil
	}

	if closeErr != nil {
		f.logger.Error("Error during RBF close.", "error", closeErr)
	} else {
		f.logger.Info("RBF file closed.", "tail_offset", f.tailOffset)
	}
	f.trigger(hooks.NewPostFileCloseEvent(hooks.FileLifecyclePayload{Path: f.path, TailOffset: f.tailOffset, ReadOnly: f.readOnly}))
	return closeErr
}

func (f *File) writeAt(p []byte, off int64) error {
	n, err := f.handle.WriteAt(p, off)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("write of %d bytes at offset %d failed after %d: %w", len(p), off, n, err)
	}
	if f.metricsBytesWritten != nil {
		f.metricsBytesWritten.Add(int64(n))
	}
	return nil
}

// readFull reads exactly len(p) bytes at off. Running out of file is a
// framing error: the bytes a frame promises are not there.
func (f *File) readFull(p []byte, off int64) error {
	n, err := f.handle.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return core.FramingError("truncated read: %d of %d bytes at offset %d", n, len(p), off).
			WithDetail(core.DetailOffset, off).
			WithDetail(core.DetailLength, len(p))
	}
	return fmt.Errorf("read of %d bytes at offset %d failed: %w", len(p), off, err)
}

// discardTail drops bytes a failed write may have left past the tail.
func (f *File) discardTail() {
	if err := f.handle.Truncate(f.tailOffset); err != nil {
		f.logger.Warn("Failed to discard partial frame.", "tail_offset", f.tailOffset, "error", err)
	}
}

func (f *File) trigger(event hooks.HookEvent) error {
	if f.hookManager == nil {
		return nil
	}
	return f.hookManager.Trigger(context.Background(), event)
}

func (f *File) startSpan(name string, attrs ...attribute.KeyValue) trace.Span {
	if f.tracer == nil {
		return nil
	}
	_, span := f.tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	return span
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
