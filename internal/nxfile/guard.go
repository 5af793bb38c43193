package nxfile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/logging"
	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

// FileGuard controls access to one open data file. It owns the file's
// optional lock, tracks the mtime it last synchronized against, and keeps
// an immutable snapshot of the tree as of that mtime.
//
// Lock ordering is scopeMu, then the shared lock's scope mutex, then mu.
type FileGuard struct {
	mgr    *Manager
	path   string
	handle *storage.Handle
	logger *logging.Logger

	// scopeMu serializes scopes opened on this guard.
	scopeMu sync.Mutex

	mu        sync.Mutex
	setting   LockSetting
	lock      *lockfile.LockFile // set by SetLock; unset settings resolve per call
	observed  time.Time
	snapshot  *tree.Tree // replaced, never mutated
	acquiring bool
}

// Path returns the canonical data file path.
func (g *FileGuard) Path() string { return g.path }

// Mode returns the handle's access mode.
func (g *FileGuard) Mode() storage.Mode { return g.handle.Mode() }

// IsOpen reports whether a storage session is active. Sessions are open
// only while a scope is.
func (g *FileGuard) IsOpen() bool { return g.handle.IsOpen() }

// Mtime returns the last mtime this guard synchronized against. It does not
// touch the disk.
func (g *FileGuard) Mtime() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.observed
}

// Tree returns the current snapshot, or nil before the first sync.
// Callers must not modify it.
func (g *FileGuard) Tree() *tree.Tree {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot
}

// Setting returns the lock setting.
func (g *FileGuard) Setting() LockSetting {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setting
}

// Lock returns the guard's lock, or nil when locking is disabled. Without an
// explicit setting the guard follows a lock another handle on the path gave
// an explicit timeout, then the registry's process default. Both are
// consulted on every call, so later changes take effect.
func (g *FileGuard) Lock() *lockfile.LockFile {
	g.mu.Lock()
	setting, l := g.setting, g.lock
	g.mu.Unlock()

	if setting.IsSet() {
		return l
	}
	reg := g.mgr.registry
	if l, ok := reg.Configured(g.path); ok {
		return l
	}
	d := reg.DefaultTimeout()
	if d <= 0 {
		return nil
	}
	l = reg.GetOrCreate(g.path, 0)
	if !l.Enabled() {
		l.SetTimeout(d)
	}
	return l
}

// SetLock changes how the guard is locked. It never acquires. Disabling a
// lock held by AcquireLock releases it first; a hold that belongs to an open
// scope, on this guard or another sharing the lock, is left for that scope
// to release. The guard's handle and observed mtime are unchanged.
func (g *FileGuard) SetLock(s LockSetting) error {
	var next *lockfile.LockFile
	if timeout := s.Timeout(); timeout > 0 {
		next = g.mgr.registry.GetOrCreate(g.path, timeout)
	} else if prev := g.Lock(); prev != nil && prev.Held() && prev.TryEnterScope() {
		err := prev.Release()
		prev.ExitScope()
		if err != nil {
			return fmt.Errorf("release lock on %s: %w", g.path, err)
		}
	}

	g.mu.Lock()
	g.setting = s
	g.lock = next
	g.mu.Unlock()

	g.logger.Debug("lock setting changed", "setting", s.String())
	return nil
}

// SetLockTimeout is SetLock(Explicit(seconds)).
func (g *FileGuard) SetLockTimeout(seconds int) error {
	return g.SetLock(Explicit(seconds))
}

// Locked reports whether this process currently holds the guard's lock.
func (g *FileGuard) Locked() bool {
	l := g.Lock()
	return l != nil && l.Held()
}

// IsLocked reports whether any process holds a live marker for this file.
func (g *FileGuard) IsLocked() bool {
	l := g.Lock()
	return l != nil && l.IsLocked()
}

// LockState reports where the guard is in the lock lifecycle.
func (g *FileGuard) LockState() LockState {
	l := g.Lock()
	g.mu.Lock()
	acquiring := g.acquiring
	g.mu.Unlock()

	switch {
	case l == nil:
		return LockUnconfigured
	case l.Held():
		return LockHeld
	case acquiring:
		return LockAcquiring
	default:
		return LockConfigured
	}
}

// AcquireLock takes the guard's lock outside a scope. It is a no-op when
// locking is disabled. The next scope to close releases it.
func (g *FileGuard) AcquireLock() error {
	return g.acquire(g.Lock())
}

// ReleaseLock releases the guard's lock if this process holds it.
func (g *FileGuard) ReleaseLock() error {
	if l := g.Lock(); l != nil {
		return l.Release()
	}
	return nil
}

func (g *FileGuard) acquire(l *lockfile.LockFile) error {
	if l == nil {
		return nil
	}
	g.mu.Lock()
	g.acquiring = true
	g.mu.Unlock()

	err := l.Acquire()

	g.mu.Lock()
	g.acquiring = false
	g.mu.Unlock()
	return err
}

// SyncIfStale reloads the snapshot when the on-disk mtime differs from the
// one last observed. On failure the snapshot is dropped and a *ReloadError
// is returned; the next call retries.
func (g *FileGuard) SyncIfStale() error {
	mtime, err := g.handle.Mtime()
	if err != nil {
		g.invalidate()
		return &ReloadError{Path: g.path, Err: err}
	}

	g.mu.Lock()
	current := g.snapshot != nil && mtime.Equal(g.observed)
	previous := g.observed
	g.mu.Unlock()
	if current {
		return nil
	}

	t, err := g.handle.Reload()
	if err != nil {
		g.invalidate()
		g.logger.Warn("reload failed", "error", err.Error())
		return &ReloadError{Path: g.path, Err: err}
	}

	g.mu.Lock()
	g.snapshot = t
	g.observed = mtime
	g.mu.Unlock()

	if !previous.IsZero() {
		g.logger.Debug("reloaded after external change",
			"previous", previous.Format(time.RFC3339Nano),
			"current", mtime.Format(time.RFC3339Nano))
	}
	g.mgr.bus.Publish(event.NewFileReloadedEvent(g.path, previous, mtime))
	return nil
}

// synced returns the snapshot after a SyncIfStale.
func (g *FileGuard) synced() (*tree.Tree, error) {
	if err := g.SyncIfStale(); err != nil {
		return nil, err
	}
	if t := g.Tree(); t != nil {
		return t, nil
	}
	return nil, &ReloadError{Path: g.path, Err: errNoSnapshot}
}

func (g *FileGuard) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshot = nil
}

// commit flushes t and records the resulting mtime. It runs with the lock
// held.
func (g *FileGuard) commit(t *tree.Tree) error {
	if err := g.handle.Flush(t); err != nil {
		g.invalidate()
		return err
	}
	mtime, err := g.handle.Mtime()
	if err != nil {
		g.invalidate()
		return err
	}

	g.mu.Lock()
	g.snapshot = t
	g.observed = mtime
	g.mu.Unlock()

	g.logger.Debug("flushed", "mtime", mtime.Format(time.RFC3339Nano))
	g.mgr.bus.Publish(event.NewFileFlushedEvent(g.path, mtime))
	return nil
}

// Write runs fn against a private copy of the tree inside a scope and
// flushes the result. If fn fails nothing is written. The lock is released
// on every path, including a panic in fn.
func (g *FileGuard) Write(fn func(*tree.Tree) error) (err error) {
	acc, err := g.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := acc.Close(); err == nil {
			err = cerr
		}
	}()
	return acc.Update(fn)
}

// WriteValue sets the field at path to value in a guarded write.
func WriteValue[T any](g *FileGuard, path string, value T) error {
	return g.Write(func(t *tree.Tree) error {
		return t.Set(path, value)
	})
}

// UpdateValue reads the field at path, passes it to fn and stores the
// result, all within one guarded write. A missing or empty field reads as
// the zero value of T.
func UpdateValue[T any](g *FileGuard, path string, fn func(T) (T, error)) error {
	return g.Write(func(t *tree.Tree) error {
		var cur T
		v, err := t.Get(path)
		switch {
		case err == nil && v == nil:
		case err == nil:
			typed, ok := v.(T)
			if !ok {
				return fmt.Errorf("%s holds %T, not %T", path, v, cur)
			}
			cur = typed
		case !errors.Is(err, tree.ErrNotFound):
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return t.Set(path, next)
	})
}
