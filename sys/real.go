package sys

import "os"

var _ FileHandle = (*RealFile)(nil)

// RealFile is a FileHandle over an *os.File.
type RealFile struct {
	f *os.File
}

func ROpenFile(sysFile File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := sysFile.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &RealFile{f: f}, nil
}

func (rf *RealFile) ReadAt(p []byte, off int64) (n int, err error) {
	return rf.f.ReadAt(p, off)
}

func (rf *RealFile) WriteAt(p []byte, off int64) (n int, err error) {
	return rf.f.WriteAt(p, off)
}

func (rf *RealFile) Stat() (os.FileInfo, error) {
	return rf.f.Stat()
}

func (rf *RealFile) Sync() error {
	return rf.f.Sync()
}

func (rf *RealFile) Truncate(size int64) error {
	return rf.f.Truncate(size)
}

func (rf *RealFile) Name() string {
	return rf.f.Name()
}

func (rf *RealFile) Fd() uintptr {
	return rf.f.Fd()
}

func (rf *RealFile) Close() error {
	return rf.f.Close()
}
