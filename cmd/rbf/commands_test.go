package main

import (
	"bytes"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/rbf/config"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
	"github.com/INLOpen/rbf/internal/testutil"
)

func newTestEnv(t *testing.T) (*environment, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	out := &bytes.Buffer{}
	return &environment{
		cfg:         cfg,
		logger:      logger,
		hookManager: hooks.NewHookManager(logger),
		stdout:      out,
		stdin:       strings.NewReader(""),
	}, out
}

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func TestCommands_AppendScanVerify(t *testing.T) {
	env, out := newTestEnv(t)
	path := testutil.TempPath(t, "cli.rbf")

	require.NoError(t, runAppend(env, []string{"-create", "-tag", "7", "-data", "hello", path}))
	assert.Contains(t, out.String(), "tail=")

	env.stdin = strings.NewReader("from stdin")
	require.NoError(t, runAppend(env, []string{"-tag", "8", "-tail-meta", "meta", path}))
	require.NoError(t, runAppend(env, []string{"-tag", "9", "-tombstone", "-data", "gone", path}))

	out.Reset()
	require.NoError(t, runScan(env, []string{path}))
	rows := lines(out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"8", "10", "4"}, strings.Split(rows[0], "\t")[2:5])
	assert.Equal(t, []string{"7", "5", "0"}, strings.Split(rows[1], "\t")[2:5])

	out.Reset()
	require.NoError(t, runScan(env, []string{"-tombstones", path}))
	rows = lines(out)
	require.Len(t, rows, 3)
	assert.True(t, strings.HasSuffix(rows[0], "\ttrue"))

	out.Reset()
	require.NoError(t, runVerify(env, []string{path}))
	assert.Contains(t, out.String(), "checked 3 frames, 0 failed")

	out.Reset()
	require.NoError(t, runStats(env, []string{path}))
	assert.Contains(t, out.String(), "frames\t3")
	assert.Contains(t, out.String(), "tombstones\t1")
}

func TestCommands_VerifyDetectsDamage(t *testing.T) {
	env, out := newTestEnv(t)
	path := testutil.TempPath(t, "damaged.rbf")
	require.NoError(t, runAppend(env, []string{"-create", "-data", "payload bytes", path}))
	testutil.CorruptByteAt(t, path, frame.HeaderFenceSize+frame.HeadLenSize)

	out.Reset()
	err := runVerify(env, []string{"-concurrency", "2", path})
	require.ErrorIs(t, err, errVerifyFailed)
	assert.Contains(t, out.String(), "checked 1 frames, 1 failed")
	assert.Contains(t, out.String(), "payload crc mismatch")
}

func TestCommands_Truncate(t *testing.T) {
	env, out := newTestEnv(t)
	path := testutil.TempPath(t, "cut.rbf")
	require.NoError(t, runAppend(env, []string{"-create", "-tag", "1", "-data", "first", path}))
	size := testutil.FileSize(t, path)
	require.NoError(t, runAppend(env, []string{"-tag", "2", "-data", "second", path}))

	out.Reset()
	assert.Error(t, runTruncate(env, []string{"-length", "13", path}), "not a frame boundary")
	require.NoError(t, runTruncate(env, []string{"-length", strconv.FormatInt(size, 10), path}))
	assert.Equal(t, size, testutil.FileSize(t, path))

	out.Reset()
	require.NoError(t, runScan(env, []string{path}))
	assert.Len(t, lines(out), 1)
}

func TestCommands_MaxPayloadVeto(t *testing.T) {
	env, _ := newTestEnv(t)
	path := testutil.TempPath(t, "guard.rbf")
	err := runAppend(env, []string{"-create", "-tag", "3", "-max-payload", "4", "-data", "too long", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, int64(frame.HeaderFenceSize), testutil.FileSize(t, path))
}

func TestCommands_Usage(t *testing.T) {
	env, _ := newTestEnv(t)
	assert.ErrorIs(t, runScan(env, nil), errUsage)
	assert.ErrorIs(t, runTruncate(env, []string{"some.rbf"}), errUsage)
	assert.ErrorIs(t, runAppend(env, []string{"-tombstone", "-tail-meta", "x", "some.rbf"}), errUsage)
	assert.ErrorIs(t, runAppend(env, []string{"-tag", "4294967296", "-data", "x", "some.rbf"}), errUsage)

	_, ok := lookupCommand("scan")
	assert.True(t, ok)
	_, ok = lookupCommand("compact")
	assert.False(t, ok)
}

func TestTable_AlignedHasHeader(t *testing.T) {
	var out bytes.Buffer
	tb := newTable(&out, true, "A", "BB")
	tb.row(1, "x")
	tb.flush()
	rows := lines(&out)
	require.Len(t, rows, 3)
	assert.True(t, strings.HasPrefix(rows[0], "A"))
	assert.True(t, strings.HasPrefix(rows[1], "-"))
}
