package sys

import "os"

// osFile implements File with the os package directly.
type osFile struct{}

// NewFile returns the platform File.
func NewFile() File {
	return &osFile{}
}

func (*osFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (*osFile) Remove(name string) error {
	err := os.Remove(name)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
