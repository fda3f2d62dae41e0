//go:build !linux

package sys

// Datasync falls back to a full Sync where fdatasync is unavailable.
func Datasync(f FileHandle) error {
	return f.Sync()
}
