//go:build unix

package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireOSFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "data.rbf.lock")

	release, err := AcquireOSFileLock(lockPath, 0)
	require.NoError(t, err)

	_, err = AcquireOSFileLock(lockPath, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release())
	_, statErr := os.Stat(lockPath)
	assert.True(t, os.IsNotExist(statErr), "release should remove the lock file")

	release2, err := AcquireOSFileLock(lockPath, 0)
	require.NoError(t, err)
	require.NoError(t, release2())
}

func TestAcquireOSFileLock_WaiterRechecksAfterRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "data.rbf.lock")

	release, err := AcquireOSFileLock(lockPath, 0)
	require.NoError(t, err)

	type result struct {
		release func() error
		err     error
	}
	waiter := make(chan result, 1)
	go func() {
		r, err := AcquireOSFileLock(lockPath, 5*time.Second)
		waiter <- result{r, err}
	}()

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, release())

	got := <-waiter
	require.NoError(t, got.err)

	// The waiter must hold the file that is at lockPath now, so a third
	// opener is still excluded.
	_, err = os.Stat(lockPath)
	require.NoError(t, err)
	_, err = AcquireOSFileLock(lockPath, 0)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, got.release())
}
