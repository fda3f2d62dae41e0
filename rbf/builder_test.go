package rbf

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/rbf/core"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/internal/testutil"
)

func TestBuilder_RoundTripWithTailMeta(t *testing.T) {
	f, mem, pool := newMemFile(t, Options{})

	payload := pattern(10, 1)
	tailMeta := []byte("meta!")

	b, err := f.BeginAppend()
	require.NoError(t, err)
	stageAll(t, b, payload, tailMeta)
	assert.Equal(t, 15, b.Sink().Len())
	assert.Zero(t, mem.Writes(), "staging must not touch the file")

	ticket, err := b.EndAppend(0x1234, len(tailMeta))
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Writes())
	assert.Equal(t, 40, ticket.Length())
	assert.Equal(t, ticket.End()+frame.FenceSize, f.TailOffset())
	requireSymmetricFrame(t, mem.Bytes(), ticket)

	fr, err := f.ReadFrame(ticket, make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), fr.Tag)
	assert.Equal(t, payload, fr.Payload())
	assert.Equal(t, tailMeta, fr.TailMeta())
	assert.Equal(t, concat(payload, tailMeta), fr.Data())

	info, err := f.ReadFrameInfo(ticket)
	require.NoError(t, err)
	assert.Equal(t, 10, info.PayloadLength)
	assert.Equal(t, 5, info.TailMetaLength)

	tm, err := f.ReadTailMeta(ticket, make([]byte, 5))
	require.NoError(t, err)
	assert.Equal(t, tailMeta, tm.Bytes())

	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestBuilder_LargeStagingGrows(t *testing.T) {
	f, mem, pool := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)

	var want []byte
	for i := 0; i < 50; i++ {
		chunk := pattern(3001, byte(i))
		stageAll(t, b, chunk)
		want = append(want, chunk...)
	}
	ticket, err := b.EndAppend(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Writes(), "a built frame is written in one call")

	pf, err := f.ReadPooledFrame(ticket)
	require.NoError(t, err)
	assert.Equal(t, want, pf.Payload())
	pf.Release()
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestBuilder_Reservations(t *testing.T) {
	f, _, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)

	// Length-prefixed body: the prefix is only known after the body is staged.
	prefix, err := b.Sink().Reserve(4)
	require.NoError(t, err)
	body := []byte("hello, reservations")
	stageAll(t, b, body)
	assert.Equal(t, 1, b.Sink().Pending())

	_, err = b.EndAppend(1, 0)
	require.Error(t, err)
	assert.True(t, core.IsStateError(err), "pending reservation must block EndAppend")

	err = b.Sink().Commit(prefix, []byte{1, 2})
	assert.True(t, core.IsArgumentError(err), "commit length must match")

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	require.NoError(t, b.Sink().Commit(prefix, lenBuf[:]))
	assert.Zero(t, b.Sink().Pending())

	err = b.Sink().Commit(prefix, lenBuf[:])
	assert.True(t, core.IsStateError(err), "a reservation commits once")

	ticket, err := b.EndAppend(2, 0)
	require.NoError(t, err)

	fr, err := f.ReadFrame(ticket, make([]byte, ticket.Length()))
	require.NoError(t, err)
	assert.Equal(t, concat(lenBuf[:], body), fr.Payload())
}

func TestBuilder_ReservationSurvivesGrowth(t *testing.T) {
	f, _, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)

	r, err := b.Sink().Reserve(8)
	require.NoError(t, err)
	stageAll(t, b, pattern(64<<10, 5))
	require.NoError(t, b.Sink().Commit(r, []byte("ABCDEFGH")))

	ticket, err := b.EndAppend(1, 0)
	require.NoError(t, err)
	fr, err := f.ReadFrame(ticket, make([]byte, ticket.Length()))
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCDEFGH"), fr.Payload()[:8])
	assert.Equal(t, pattern(64<<10, 5), fr.Payload()[8:])

	_, err = b.Sink().Reserve(-1)
	assert.True(t, core.IsStateError(err), "finished builder rejects everything")
}

func TestBuilder_TailMetaValidation(t *testing.T) {
	testCases := []struct {
		name     string
		staged   int
		tailMeta int
	}{
		{"negative", 8, -1},
		{"longer than staged", 8, 9},
		{"beyond descriptor range", 70_000, 65_536},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, mem, _ := newMemFile(t, Options{})
			b, err := f.BeginAppend()
			require.NoError(t, err)
			stageAll(t, b, pattern(tc.staged, 0))

			_, err = b.EndAppend(1, tc.tailMeta)
			require.Error(t, err)
			assert.True(t, core.IsArgumentError(err))
			assert.Zero(t, mem.Writes())

			// Still building: a valid call succeeds.
			ticket, err := b.EndAppend(1, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(frame.HeaderFenceSize), ticket.Offset())
		})
	}

	t.Run("maximum tail metadata", func(t *testing.T) {
		f, _, _ := newMemFile(t, Options{})
		b, err := f.BeginAppend()
		require.NoError(t, err)
		stageAll(t, b, pattern(10, 0), pattern(frame.MaxTailMetaLength, 1))
		ticket, err := b.EndAppend(1, frame.MaxTailMetaLength)
		require.NoError(t, err)
		info, err := f.ReadFrameInfo(ticket)
		require.NoError(t, err)
		assert.Equal(t, frame.MaxTailMetaLength, info.TailMetaLength)
		assert.Equal(t, 10, info.PayloadLength)
	})
}

func TestBuilder_ZeroIOAbort(t *testing.T) {
	for _, size := range []int{100, 100 * 1024} {
		t.Run(fmt.Sprintf("%d_bytes", size), func(t *testing.T) {
			f, mem, pool := newMemFile(t, Options{})
			_, err := f.Append(1, []byte("existing"))
			require.NoError(t, err)
			tail := f.TailOffset()
			length := mem.Len()
			mem.ResetCounters()

			b, err := f.BeginAppend()
			require.NoError(t, err)
			stageAll(t, b, pattern(size, 9))
			_, err = b.Sink().Reserve(4)
			require.NoError(t, err)
			b.Abort()
			b.Abort()

			assert.Zero(t, mem.Writes())
			assert.Equal(t, tail, f.TailOffset())
			assert.Equal(t, length, mem.Len())
			assert.Equal(t, int64(0), pool.Outstanding())

			// The file is Idle again.
			_, err = f.Append(2, []byte("next"))
			require.NoError(t, err)
		})
	}
}

func TestBuilder_ZeroIOAbortOnDisk(t *testing.T) {
	path := testutil.TempPath(t, "abort.rbf")
	f, err := Create(path, Options{Logger: quietLogger})
	require.NoError(t, err)
	defer f.Close()

	b, err := f.BeginAppend()
	require.NoError(t, err)
	stageAll(t, b, pattern(100*1024, 1))
	b.Abort()

	assert.Equal(t, int64(frame.HeaderFenceSize), f.TailOffset())
	assert.Equal(t, int64(frame.HeaderFenceSize), testutil.FileSize(t, path))
}

func TestBuilder_EpochSafety(t *testing.T) {
	t.Run("after EndAppend and a new cycle", func(t *testing.T) {
		f, mem, pool := newMemFile(t, Options{})

		stale, err := f.BeginAppend()
		require.NoError(t, err)
		stageAll(t, stale, []byte("one"))
		first, err := stale.EndAppend(1, 0)
		require.NoError(t, err)

		fresh, err := f.BeginAppend()
		require.NoError(t, err)
		assert.Greater(t, fresh.Epoch(), stale.Epoch())
		stageAll(t, fresh, []byte("two"))
		second, err := fresh.EndAppend(2, 0)
		require.NoError(t, err)
		data := mem.Bytes()

		_, err = stale.Sink().Write([]byte("x"))
		assert.True(t, core.IsStateError(err))
		_, err = stale.Sink().Reserve(4)
		assert.True(t, core.IsStateError(err))
		_, err = stale.EndAppend(3, 0)
		assert.True(t, core.IsStateError(err))
		stale.Abort()

		assert.Equal(t, data, mem.Bytes(), "stale builder must not touch the file")
		fr, err := f.ReadFrame(second, make([]byte, second.Length()))
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), fr.Payload())
		fr, err = f.ReadFrame(first, make([]byte, first.Length()))
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), fr.Payload())
		assert.Equal(t, int64(0), pool.Outstanding())
	})

	t.Run("stale abort does not release the active builder", func(t *testing.T) {
		f, _, _ := newMemFile(t, Options{})
		old, err := f.BeginAppend()
		require.NoError(t, err)
		old.Abort()

		active, err := f.BeginAppend()
		require.NoError(t, err)
		old.Abort()
		assert.Panics(t, func() { _, _ = f.Append(1, nil) }, "active builder must still block Append")
		active.Abort()
	})

	t.Run("after Close", func(t *testing.T) {
		f, _, pool := newMemFile(t, Options{})
		b, err := f.BeginAppend()
		require.NoError(t, err)
		stageAll(t, b, pattern(5000, 1))
		require.NoError(t, f.Close())

		_, err = b.EndAppend(1, 0)
		assert.True(t, core.IsStateError(err))
		assert.Equal(t, int64(0), pool.Outstanding(), "stale builder gives its buffer back")
		b.Abort()
	})
}

func TestBuilder_DoubleEndAppend(t *testing.T) {
	f, mem, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)
	stageAll(t, b, []byte("once"))
	_, err = b.EndAppend(1, 0)
	require.NoError(t, err)
	writes := mem.Writes()

	_, err = b.EndAppend(1, 0)
	require.Error(t, err)
	assert.True(t, core.IsStateError(err))
	assert.Equal(t, writes, mem.Writes())
}

func TestBuilder_DroppedBuilderKeepsFileBusy(t *testing.T) {
	f, mem, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)
	stageAll(t, b, []byte("never committed"))

	// Without EndAppend or Abort the file stays busy.
	assert.Panics(t, func() { _, _ = f.Append(1, []byte("x")) })

	b.Abort()
	ticket, err := f.Append(1, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(frame.HeaderFenceSize), ticket.Offset())
	assert.Equal(t, 1, mem.Writes())
}

func TestBuilder_DuplicateBeginAppendPanics(t *testing.T) {
	f, _, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)
	defer b.Abort()
	assert.Panics(t, func() { _, _ = f.BeginAppend() })
}

func TestBuilder_WriteFailureEndsBuilder(t *testing.T) {
	f, mem, pool := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)
	stageAll(t, b, pattern(300, 2))

	mem.FailWritesAfter(0)
	_, err = b.EndAppend(1, 0)
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, int64(frame.HeaderFenceSize), f.TailOffset())
	assert.Equal(t, int64(0), pool.Outstanding())

	_, err = b.EndAppend(1, 0)
	assert.True(t, core.IsStateError(err))

	mem.FailWritesAfter(-1)
	_, err = f.Append(1, []byte("recovered"))
	require.NoError(t, err)
}

func TestBuilder_TruncateWhileBuilding(t *testing.T) {
	f, _, _ := newMemFile(t, Options{})
	b, err := f.BeginAppend()
	require.NoError(t, err)
	defer b.Abort()
	err = f.Truncate(frame.HeaderFenceSize)
	assert.True(t, core.IsStateError(err))
}
