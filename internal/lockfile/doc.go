// Package lockfile implements the advisory marker-file lock that guards a
// shared data file against concurrent writers in other processes.
//
// A lock on data file F is the marker F.lock (or <dir>/F.lock when a lock
// directory is configured). The marker's existence and the age of its mtime
// are the only state that matters:
//
//   - marker absent: unlocked
//   - marker present, age <= timeout: locked by a live holder
//   - marker present, age > timeout: stale; an acquirer that first sees it
//     stale may remove it once
//
// The marker body holds the holder's pid, host and acquisition time for
// diagnostics only.
//
// # Acquisition
//
// [LockFile.Acquire] creates the marker with O_CREATE|O_EXCL. While another
// holder owns it, Acquire sleeps with exponential backoff and gives up with a
// [*TimeoutError] once the total wait reaches the timeout. A marker that was
// live when Acquire first saw it is waited out even if it ages past the
// timeout meanwhile; only a marker already stale when seen is reclaimed, at
// most once per call. The reclaim runs under an flock(2) on F.lock.reclaim
// so two reclaimers cannot delete each other's fresh marker.
//
// # Process scope
//
// One LockFile instance represents the lock for the whole process: Held is
// process-wide and Acquire on an instance that is already held returns
// immediately. Use [filelock.Registry] to share instances between handles.
// A timeout of zero disables the lock entirely.
//
// # Basic Usage
//
//	lf := lockfile.New("/data/scan.nxs", 10*time.Second)
//	if err := lf.Acquire(); err != nil {
//	    return err // errors.Is(err, lockfile.ErrLockTimeout)
//	}
//	defer lf.Release()
package lockfile
