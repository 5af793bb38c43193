// Package filelock tracks the advisory lock of every data file a process
// has opened.
//
// A data file may be opened through several handles at once. Each handle
// must share one [lockfile.LockFile] so that a lock held through one handle
// is seen as held by the others, and so that in-process acquisitions are
// serialized by a single mutex. The [Registry] maps the canonical absolute
// path of a file to that shared instance.
//
// # Default Timeout
//
// The registry also owns the process default timeout. It starts at zero
// (locking disabled) and changes only through [Registry.SetDefaultTimeout].
// The default is read when a lock is created; changing it later does not
// alter locks that already exist.
//
// # Basic Usage
//
//	reg := filelock.NewRegistry(filelock.WithLogger(logger))
//	reg.SetDefaultTimeout(20 * time.Second)
//
//	lock := reg.GetOrCreate("scan.nxs", 0) // uses the 20s default
//	if err := lock.Acquire(); err != nil {
//		return err
//	}
//	defer lock.Release()
//
// # Thread Safety
//
// All [Registry] methods are safe for concurrent use via an internal
// sync.RWMutex. Registration handlers run outside that lock.
package filelock
