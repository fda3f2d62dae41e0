// Package sys provides the positional file primitive RBF is written against
// and the few platform calls it needs (fdatasync, preallocation, advisory
// locking).
package sys

import (
	"io"
	"os"
	"sync/atomic"
)

// fileWrapper is a stable concrete type used to store the File interface
// inside an atomic.Value. atomic.Value requires that all stored values
// have the same concrete type.
type fileWrapper struct {
	f File
}

var defaultFile atomic.Value // stores fileWrapper
var debugMode atomic.Bool

// File opens platform files. Tests swap it out with SetDefaultFile.
type File interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Remove(name string) error
}

// FileHandle is a positional I/O handle: every read and write names its own
// offset and there is no seek position.
type FileHandle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
}

// fdHandle is implemented by handles backed by an OS descriptor.
type fdHandle interface {
	Fd() uintptr
}

type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)

func init() {
	debugMode.Store(false)
	defaultFile.Store(fileWrapper{f: NewFile()})
}

// SetDefaultFile replaces the File used by OpenFile.
func SetDefaultFile(file File) {
	defaultFile.Store(fileWrapper{f: file})
}

// SetDebugMode makes OpenFile return handles that log every positional
// read and write.
func SetDebugMode(mode bool) {
	debugMode.Store(mode)
}

func loadDefaultFile() (File, error) {
	p := defaultFile.Load()
	if p == nil {
		return nil, os.ErrInvalid
	}
	fw, ok := p.(fileWrapper)
	if !ok || fw.f == nil {
		return nil, os.ErrInvalid
	}
	return fw.f, nil
}

var OpenFile OpenFileHandler = (func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	file, err := loadDefaultFile()
	if err != nil {
		return nil, err
	}
	if debugMode.Load() {
		return DOpenFile(file, name, flag, perm)
	}
	return ROpenFile(file, name, flag, perm)
})

// Remove deletes name through the default File.
func Remove(name string) error {
	file, err := loadDefaultFile()
	if err != nil {
		return err
	}
	return file.Remove(name)
}
