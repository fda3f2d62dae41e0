//go:build !unix

package sys

import (
	"errors"
	"time"
)

var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("file is locked by another process")

func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}
