package filelock

import (
	"time"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/logging"
)

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultTimeout sets the initial process default. Zero keeps locking
// disabled for files that do not ask for it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.defaultTimeout = max(d, 0)
	}
}

// WithLockDir places every marker created by the registry in dir.
func WithLockDir(dir string) Option {
	return func(r *Registry) {
		r.lockDir = dir
	}
}

// WithBackoff sets the retry backoff for locks created by the registry.
func WithBackoff(b lockfile.Backoff) Option {
	return func(r *Registry) {
		r.backoff = &b
	}
}

// WithMaxRetries bounds acquisition attempts for locks created by the registry.
func WithMaxRetries(n int) Option {
	return func(r *Registry) {
		r.maxRetries = n
	}
}

// WithLogger sets the logger handed to every lock.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBus sets the bus that locks publish lifecycle events to.
func WithBus(bus *event.Bus) Option {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}
