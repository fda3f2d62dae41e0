package rbf

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
	"github.com/INLOpen/rbf/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// trackingPool is a BytePool that reports how many buffers are rented out.
type trackingPool interface {
	core.BytePool
	Outstanding() int64
}

// newMemFile returns a File over a fresh MemFile with its own pool. The
// header write is already done and the MemFile counters are reset.
func newMemFile(t *testing.T, opts Options) (*File, *testutil.MemFile, trackingPool) {
	t.Helper()
	mem := testutil.NewMemFile("mem.rbf")
	pool := core.NewBytePool()
	opts.BufferPool = pool
	if opts.Logger == nil {
		opts.Logger = quietLogger
	}
	f, err := NewFile(mem, opts)
	require.NoError(t, err)
	mem.ResetCounters()
	return f, mem, pool
}

// pattern returns n bytes of a repeating, seed-dependent sequence.
func pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7) + seed
	}
	return p
}

// requireSymmetricFrame asserts HeadLen == TailLen == ticket length and that
// the frame is followed by a fence.
func requireSymmetricFrame(t *testing.T, data []byte, ticket frame.Ticket) {
	t.Helper()
	start := ticket.Offset()
	end := ticket.End()
	require.Equal(t, uint32(ticket.Length()), frame.HeadLen(data[start:]), "HeadLen")
	tr, _, err := frame.DecodeTrailer(data[end-frame.TrailerSize : end])
	require.NoError(t, err)
	require.Equal(t, uint32(ticket.Length()), tr.TailLen, "TailLen")
	require.True(t, frame.IsFence(data[end:]), "closing fence")
}

func stageAll(t *testing.T, b *Builder, parts ...[]byte) {
	t.Helper()
	for _, p := range parts {
		n, err := b.Sink().Write(p)
		require.NoError(t, err)
		require.Equal(t, len(p), n)
	}
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// recordingListener captures every event it sees.
type recordingListener struct {
	mu     sync.Mutex
	events []hooks.HookEvent
	err    error
}

func (l *recordingListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingListener) Priority() int { return 1 }
func (l *recordingListener) IsAsync() bool { return false }

func (l *recordingListener) payloads() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]any, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Payload())
	}
	return out
}
