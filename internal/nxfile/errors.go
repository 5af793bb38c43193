package nxfile

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by guards and scopes.
var (
	// ErrReload is matched by every *ReloadError.
	ErrReload = errors.New("reload from storage failed")

	// ErrScopeClosed is returned when an Access is used after Close.
	ErrScopeClosed = errors.New("access scope is closed")

	errNoSnapshot = errors.New("snapshot discarded after a failed reload")
)

// ReloadError reports that the in-memory tree could not be resynchronized
// after the file changed on disk. The guard's snapshot is discarded and the
// next read retries the reload.
type ReloadError struct {
	Path string
	Err  error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrReload and the underlying cause to errors.Is.
func (e *ReloadError) Unwrap() []error {
	return []error{ErrReload, e.Err}
}
