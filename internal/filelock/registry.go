package filelock

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/logging"
)

// Registry hands out one shared *lockfile.LockFile per data file path and
// holds the process default timeout. Handles that open the same file get the
// same lock instance, so reentrancy and in-process serialization work across
// them.
type Registry struct {
	mu             sync.RWMutex
	locks          map[string]*lockfile.LockFile // canonical path -> lock
	explicit       map[string]bool               // paths given a timeout by a caller
	defaultTimeout time.Duration
	lockDir        string
	backoff        *lockfile.Backoff
	maxRetries     int
	logger         *logging.Logger
	bus            *event.Bus
	handlers       []func(*lockfile.LockFile)
}

// NewRegistry creates an empty Registry. Locking is disabled by default.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		locks:    make(map[string]*lockfile.LockFile),
		explicit: make(map[string]bool),
		logger: logging.NopLogger(),
		bus:    event.NewBus(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Canonical returns the key the registry uses for path.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// GetOrCreate returns the lock tracked for path. A positive timeout updates
// an existing lock; zero means "use the registry default" and leaves an
// existing lock untouched. New locks are registered before being returned,
// and concurrent callers for one path always receive the same instance.
func (r *Registry) GetOrCreate(path string, timeout time.Duration) *lockfile.LockFile {
	key := Canonical(path)

	r.mu.Lock()
	if timeout > 0 {
		r.explicit[key] = true
	}
	if l, ok := r.locks[key]; ok {
		r.mu.Unlock()
		if timeout > 0 {
			l.SetTimeout(timeout)
		}
		return l
	}

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	l := lockfile.New(key, timeout, r.lockOptions()...)
	r.locks[key] = l
	r.mu.Unlock()

	r.logger.Debug("lock registered", "file", key, "timeout", timeout.String())
	r.notifyHandlersUnlocked(l)
	return l
}

func (r *Registry) lockOptions() []lockfile.Option {
	opts := []lockfile.Option{
		lockfile.WithLogger(r.logger),
		lockfile.WithBus(r.bus),
		lockfile.WithMaxRetries(r.maxRetries),
	}
	if r.lockDir != "" {
		opts = append(opts, lockfile.WithDir(r.lockDir))
	}
	if r.backoff != nil {
		opts = append(opts, lockfile.WithBackoff(*r.backoff))
	}
	return opts
}

// Lookup returns the lock tracked for path without creating one.
func (r *Registry) Lookup(path string) (*lockfile.LockFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.locks[Canonical(path)]
	return l, ok
}

// Configured returns the lock for path if a caller gave it an explicit
// timeout and it is still enabled. Locks created only from the process
// default are not reported.
func (r *Registry) Configured(path string) (*lockfile.LockFile, bool) {
	key := Canonical(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.locks[key]
	if !ok || !r.explicit[key] || !l.Enabled() {
		return nil, false
	}
	return l, true
}

// Forget drops the lock tracked for path. A held lock is kept and Forget
// reports false, since another handle may still be inside a scope.
func (r *Registry) Forget(path string) bool {
	key := Canonical(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok || l.Held() {
		return false
	}
	delete(r.locks, key)
	delete(r.explicit, key)
	return true
}

// SetDefaultTimeout changes the process default. Locks that already exist
// keep their timeout.
func (r *Registry) SetDefaultTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultTimeout = max(d, 0)
}

// DefaultTimeout returns the process default; zero means disabled.
func (r *Registry) DefaultTimeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.defaultTimeout
}

// LockDir returns the configured marker directory, or "".
func (r *Registry) LockDir() string { return r.lockDir }

// Bus returns the bus that registered locks publish to.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Paths returns every tracked file path, sorted.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.locks))
	for p := range r.locks {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WatchRegistrations registers a handler called whenever a new lock is
// created. Handlers run outside the registry's lock and may call back into it.
func (r *Registry) WatchRegistrations(handler func(*lockfile.LockFile)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

// WatchAcquisitions calls handler each time any registered lock is taken.
// It returns the bus subscription ID.
func (r *Registry) WatchAcquisitions(handler func(event.LockAcquiredEvent)) string {
	return r.bus.Subscribe(event.TypeLockAcquired, func(e event.Event) {
		if acquired, ok := e.(event.LockAcquiredEvent); ok {
			handler(acquired)
		}
	})
}

func (r *Registry) notifyHandlersUnlocked(l *lockfile.LockFile) {
	r.mu.RLock()
	handlers := make([]func(*lockfile.LockFile), len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(l)
	}
}
