package rbf

import (
	"expvar"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/hooks"
)

// Options configures a File.
type Options struct {
	Logger *slog.Logger
	// Tracer wraps appends, truncation, flushes and reverse scans in spans
	// when set.
	Tracer      trace.Tracer
	HookManager hooks.HookManager
	// BufferPool supplies staging and read buffers. Defaults to core.DefaultBytePool.
	BufferPool core.BytePool

	BytesWritten  *expvar.Int
	FramesWritten *expvar.Int

	// PreallocateBytes reserves disk space on Create/Open without changing
	// the visible file length. Failures are logged and ignored.
	PreallocateBytes int64
	// ExclusiveLock takes an advisory lock on "<path>.lock" for the lifetime
	// of the File. Only Create and Open honour it.
	ExclusiveLock bool
	// LockTimeout bounds how long Create/Open wait for the lock.
	LockTimeout time.Duration
	// ReadOnly opens the file without write access.
	ReadOnly bool
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "RBF_default")
	} else {
		o.Logger = o.Logger.With("component", "RBF")
	}
	if o.BufferPool == nil {
		o.BufferPool = core.DefaultBytePool
	}
}
