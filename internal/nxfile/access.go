package nxfile

import (
	"errors"
	"fmt"

	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

// Access is an open scope on a guard. While it is open the file's lock is
// held (when one is configured) and no other scope on the same guard, or on
// any guard sharing the lock, can run. Close flushes any changes and
// releases everything; always defer it:
//
//	acc, err := guard.Begin()
//	if err != nil {
//		return err
//	}
//	defer acc.Close()
//
// Scopes are not reentrant. Inside a scope, mutate through the Access rather
// than through Root or FileGuard.Write on the same guard.
type Access struct {
	guard  *FileGuard
	lock   *lockfile.LockFile
	opened bool
	work   *tree.Tree // uncommitted result of Update
	closed bool
}

// Begin opens a scope: it serializes against other scopes, opens the
// storage session, synchronizes with disk, and acquires the lock. A lock
// timeout is returned unchanged (it matches lockfile.ErrLockTimeout) and
// leaves nothing held.
func (g *FileGuard) Begin() (_ *Access, err error) {
	g.scopeMu.Lock()
	acc := &Access{guard: g, lock: g.Lock()}
	if acc.lock != nil {
		acc.lock.EnterScope()
	}
	defer func() {
		if err != nil {
			acc.closed = true
			acc.unwind(false)
		}
	}()

	if !g.handle.IsOpen() {
		if err := g.handle.Open(); err != nil {
			return nil, err
		}
		acc.opened = true
	}
	if err := g.SyncIfStale(); err != nil {
		return nil, err
	}
	if err := g.acquire(acc.lock); err != nil {
		return nil, err
	}
	// Another writer may have finished between the first sync and the
	// acquisition.
	if err := g.SyncIfStale(); err != nil {
		return nil, err
	}
	return acc, nil
}

// Guard returns the guard the scope belongs to.
func (a *Access) Guard() *FileGuard { return a.guard }

// Tree returns the scope's current view: pending changes if any, otherwise
// the synchronized snapshot. Callers must not modify it; use Update.
func (a *Access) Tree() *tree.Tree {
	if a.work != nil {
		return a.work
	}
	return a.guard.Tree()
}

// Get returns the value of the field at path in the scope's view.
func (a *Access) Get(path string) (any, error) {
	if a.closed {
		return nil, ErrScopeClosed
	}
	t := a.Tree()
	if t == nil {
		return nil, &ReloadError{Path: a.guard.path, Err: errNoSnapshot}
	}
	return t.Get(path)
}

// Update applies fn to a copy of the scope's view. The copy replaces the
// view only if fn succeeds; it is flushed when the scope closes.
func (a *Access) Update(fn func(*tree.Tree) error) error {
	if a.closed {
		return ErrScopeClosed
	}
	if !a.guard.handle.Writable() {
		return fmt.Errorf("update %s: %w", a.guard.path, storage.ErrReadOnly)
	}
	base := a.Tree()
	if base == nil {
		base = tree.New()
	}
	work := base.Clone()
	if err := fn(work); err != nil {
		return err
	}
	a.work = work
	return nil
}

// Set assigns value to the field at path.
func (a *Access) Set(path string, value any) error {
	return a.Update(func(t *tree.Tree) error {
		return t.Set(path, value)
	})
}

// Replace swaps the whole tree for a copy of t.
func (a *Access) Replace(t *tree.Tree) {
	if a.closed || !a.guard.handle.Writable() {
		return
	}
	a.work = t.Clone()
}

// Dirty reports whether the scope has changes to flush.
func (a *Access) Dirty() bool { return a.work != nil }

// Close flushes pending changes, records the new mtime, releases the lock
// and ends the storage session. Cleanup runs even when the flush fails; the
// first error is returned. Closing twice is a no-op.
func (a *Access) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.unwind(true)
}

func (a *Access) unwind(flush bool) error {
	g := a.guard
	var errs []error
	if flush && a.work != nil {
		if err := g.commit(a.work); err != nil {
			errs = append(errs, err)
		}
		a.work = nil
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, err)
		}
		a.lock.ExitScope()
	}
	if a.opened {
		if err := g.handle.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.scopeMu.Unlock()
	return errors.Join(errs...)
}
