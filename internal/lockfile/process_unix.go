//go:build unix

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive sends signal 0 to pid. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) (bool, bool) {
	if pid <= 0 {
		return false, true
	}
	err := unix.Kill(pid, 0)
	if err == nil || errors.Is(err, unix.EPERM) {
		return true, true
	}
	return false, true
}
