//go:build linux

package sys

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes of disk for f without changing its visible
// length (fallocate with FALLOC_FL_KEEP_SIZE). RBF derives the logical end
// of file from the file length, so only KEEP_SIZE is acceptable here.
func Preallocate(f FileHandle, size int64) error {
	if size <= 0 {
		return nil
	}
	fh, ok := f.(fdHandle)
	if !ok {
		return recordPrealloc(ErrPreallocNotSupported)
	}
	fd := int(fh.Fd())

	var stat unix.Stat_t
	var dev uint64
	if err := unix.Fstat(fd, &stat); err == nil {
		dev = uint64(stat.Dev)
		if allow, found := preallocCacheLoad(dev); found {
			preallocCacheHits.Add(1)
			if !allow {
				return recordPrealloc(ErrPreallocNotSupported)
			}
			return recordPrealloc(fallocateKeepSize(fd, dev, size))
		}
		preallocCacheMisses.Add(1)
	}

	// Only local filesystems with a working fallocate are worth the syscall.
	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return recordPrealloc(ErrPreallocNotSupported)
	}
	switch st.Type {
	case 0xEF53, // EXT2/3/4
		0x58465342, // XFS
		0x9123683E, // BTRFS
		0x01021994, // TMPFS
		0x794C7630, // OVERLAYFS
		0xF2F52010, // F2FS
		0x2FC12FC1: // ZFS on Linux
	default:
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		return recordPrealloc(ErrPreallocNotSupported)
	}
	return recordPrealloc(fallocateKeepSize(fd, dev, size))
}

func fallocateKeepSize(fd int, dev uint64, size int64) error {
	err := unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, size)
	if err == nil {
		if dev != 0 {
			preallocCacheStore(dev, true)
		}
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY) {
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		return ErrPreallocNotSupported
	}
	return fmt.Errorf("preallocation failed for fd=%d: %w", fd, err)
}
