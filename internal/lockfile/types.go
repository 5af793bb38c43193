package lockfile

import (
	"errors"
	"fmt"
	"time"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/logging"
)

// DefaultTimeout is the timeout used when a lock is enabled without an
// explicit value.
const DefaultTimeout = 10 * time.Second

// MarkerSuffix is appended to the data file name to form the marker name.
const MarkerSuffix = ".lock"

// reclaimSuffix names the flock file that serializes stale reclaims.
const reclaimSuffix = ".reclaim"

// Sentinel errors.
var (
	// ErrLockTimeout is matched by every *TimeoutError.
	ErrLockTimeout = errors.New("timed out waiting for file lock")
)

// TimeoutError reports an acquisition that exhausted its wait budget.
type TimeoutError struct {
	Path     string        // Marker path that stayed locked
	Waited   time.Duration // Total time spent waiting
	Attempts int           // Number of create attempts
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s after %s (%d attempts)",
		ErrLockTimeout, e.Path, e.Waited.Round(time.Millisecond), e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return ErrLockTimeout }

// MarkerInfo is the diagnostic body of a marker file.
type MarkerInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Backoff configures the delay between acquisition attempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at 50ms and doubles up to one second.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
	}
}

// Option configures a LockFile.
type Option func(*LockFile)

// WithBackoff sets the retry backoff. Zero fields keep their defaults.
func WithBackoff(b Backoff) Option {
	return func(l *LockFile) {
		if b.Initial > 0 {
			l.backoff.Initial = b.Initial
		}
		if b.Max > 0 {
			l.backoff.Max = b.Max
		}
		if b.Multiplier >= 1 {
			l.backoff.Multiplier = b.Multiplier
		}
	}
}

// WithMaxRetries bounds the number of create attempts in addition to the
// timeout. Zero means the timeout alone bounds acquisition.
func WithMaxRetries(n int) Option {
	return func(l *LockFile) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// WithDir places the marker in dir instead of next to the data file.
func WithDir(dir string) Option {
	return func(l *LockFile) {
		l.dir = dir
	}
}

// WithLogger sets the logger. Stale recoveries are logged at WARN.
func WithLogger(logger *logging.Logger) Option {
	return func(l *LockFile) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBus publishes lock lifecycle events to bus.
func WithBus(bus *event.Bus) Option {
	return func(l *LockFile) {
		l.bus = bus
	}
}
