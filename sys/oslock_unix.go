//go:build unix

package sys

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("file is locked by another process")

// AcquireOSFileLock takes an advisory exclusive flock on lockPath, creating
// the file if needed. It retries until timeout elapses; a zero timeout tries
// once. The returned release function removes the file while still holding
// the lock, then unlocks and closes it.
//
// A lock only counts if the locked inode is still the one at lockPath;
// otherwise the holder released it in between and the open is retried.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, err
		}
		fd := int(f.Fd())

		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			current, err := sameInode(f, lockPath)
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			if current {
				release := func() error {
					removeErr := os.Remove(lockPath)
					_ = unix.Flock(fd, unix.LOCK_UN)
					if closeErr := f.Close(); closeErr != nil {
						return closeErr
					}
					if removeErr != nil && !os.IsNotExist(removeErr) {
						return removeErr
					}
					return nil
				}
				return release, nil
			}
			// Locked a file that was already unlinked; try the new one.
			_ = f.Close()
			continue
		}
		_ = f.Close()
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// sameInode reports whether f is still the file named path.
func sameInode(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	named, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(held, named), nil
}
