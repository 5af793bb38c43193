package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by storage operations.
var (
	// ErrStorage matches every *IOError.
	ErrStorage = errors.New("storage error")

	// ErrReadOnly is returned when writing through a read-only handle.
	ErrReadOnly = errors.New("file opened read-only")

	// ErrClosed is returned when flushing through a closed handle.
	ErrClosed = errors.New("file handle is closed")

	// ErrFormat is returned when a file is not a valid tree document.
	ErrFormat = errors.New("invalid tree document")
)

// IOError records a failed storage operation on a path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause to errors.Is.
func (e *IOError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
