//go:build !unix

package lockfile

// processAlive cannot probe other processes portably here.
func processAlive(pid int) (bool, bool) {
	return false, false
}
