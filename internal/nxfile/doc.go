// Package nxfile guards a file-backed tree against concurrent writers.
//
// A [FileGuard] sits between the tree and its storage handle. Before every
// read it compares the file's on-disk mtime with the mtime it last
// synchronized against and reloads when another writer has changed the
// file. Writes run inside a scope ([FileGuard.Begin] or [FileGuard.Write])
// that acquires the file's advisory lock, applies the change to a private
// copy, flushes it, records the new mtime and releases the lock on every
// exit path.
//
// # Locks
//
// Each guard's lock comes from the [Manager]'s registry so that every handle
// on one path shares a single lock. A guard with no explicit [LockSetting]
// follows the registry's process default, which starts disabled:
//
//	mgr := nxfile.NewManager()
//	mgr.Registry().SetDefaultTimeout(20 * time.Second)
//
//	root, err := mgr.Load("scan.nxs", storage.ReadWrite)
//	if err != nil {
//		return err
//	}
//	if err := root.Set("entry/title", "run 42"); err != nil {
//		return err
//	}
//
// [UseDefault] always means [lockfile.DefaultTimeout], and [Explicit] sets
// a number of seconds:
//
//	_ = root.File().SetLock(nxfile.Explicit(5))
//
// # Scopes
//
// A scope holds the lock for several operations:
//
//	acc, err := root.File().Begin()
//	if err != nil {
//		return err
//	}
//	defer acc.Close()
//	_ = acc.Set("entry/a", 1)
//	_ = acc.Set("entry/b", 2)
//
// Scopes are not reentrant: code running inside a scope must use the
// [Access] rather than open another scope on the same guard.
package nxfile
