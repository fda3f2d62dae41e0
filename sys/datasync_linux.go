//go:build linux

package sys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Datasync flushes f's data and the metadata needed to read it back
// (fdatasync). Handles without a descriptor fall back to Sync.
func Datasync(f FileHandle) error {
	fh, ok := f.(fdHandle)
	if !ok {
		return f.Sync()
	}
	for {
		err := unix.Fdatasync(int(fh.Fd()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("fdatasync %s: %w", f.Name(), err)
		}
		return nil
	}
}
