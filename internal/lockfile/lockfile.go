package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/logging"
)

// LockFile is the process-wide advisory lock for one data file.
// It is safe for concurrent use.
type LockFile struct {
	target string // data file the lock protects
	dir    string // optional marker directory

	// mu serializes Acquire, Release and Clear so that two goroutines never
	// race on the marker from the same process.
	mu sync.Mutex

	// state guards the fields below for cheap concurrent reads.
	state      sync.RWMutex
	timeout    time.Duration
	held       bool
	acquiredAt time.Time
	marker     MarkerInfo // body we wrote, used to detect takeover

	// scope serializes guarded sections of every handle sharing this lock.
	scope sync.Mutex

	backoff    Backoff
	maxRetries int
	logger     *logging.Logger
	bus        *event.Bus
	now        func() time.Time
}

// New returns a lock for target. A timeout <= 0 disables it.
func New(target string, timeout time.Duration, opts ...Option) *LockFile {
	l := &LockFile{
		target:  target,
		backoff: DefaultBackoff(),
		logger:  logging.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.timeout = max(timeout, 0)
	l.logger = l.logger.WithFile(target).WithLock(l.Path())
	return l
}

// MarkerPath returns the marker path for target, in dir when it is non-empty.
func MarkerPath(target, dir string) string {
	if dir == "" {
		return target + MarkerSuffix
	}
	return filepath.Join(dir, filepath.Base(target)+MarkerSuffix)
}

// Path returns the marker path.
func (l *LockFile) Path() string { return MarkerPath(l.target, l.dir) }

// Target returns the data file path.
func (l *LockFile) Target() string { return l.target }

// Timeout returns the configured timeout; zero means disabled.
func (l *LockFile) Timeout() time.Duration {
	l.state.RLock()
	defer l.state.RUnlock()
	return l.timeout
}

// SetTimeout changes the timeout. It does not acquire or release the marker.
func (l *LockFile) SetTimeout(d time.Duration) {
	l.state.Lock()
	defer l.state.Unlock()
	l.timeout = max(d, 0)
}

// Enabled reports whether the timeout is positive.
func (l *LockFile) Enabled() bool { return l.Timeout() > 0 }

// Held reports whether this process currently owns the marker.
func (l *LockFile) Held() bool {
	l.state.RLock()
	defer l.state.RUnlock()
	return l.held
}

// AcquiredAt returns when the marker was taken, or the zero time.
func (l *LockFile) AcquiredAt() time.Time {
	l.state.RLock()
	defer l.state.RUnlock()
	return l.acquiredAt
}

// EnterScope blocks until no other guarded section on this lock is running.
func (l *LockFile) EnterScope() { l.scope.Lock() }

// TryEnterScope is EnterScope without blocking. It reports false when a
// guarded section is already running.
func (l *LockFile) TryEnterScope() bool { return l.scope.TryLock() }

// ExitScope ends a section started with EnterScope.
func (l *LockFile) ExitScope() { l.scope.Unlock() }

// Acquire takes the marker, waiting up to the timeout. It returns nil
// immediately when the lock is disabled or already held by this process.
func (l *LockFile) Acquire() error {
	events, err := l.acquire()
	l.publish(events...)
	return err
}

func (l *LockFile) acquire() ([]event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timeout := l.Timeout()
	if timeout <= 0 || l.Held() {
		return nil, nil
	}

	var events []event.Event
	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	start := l.now()
	delays := l.newBackOff()
	reclaimed := false
	sawLive := false // a live marker is waited out, never reclaimed
	attempts := 0

	for {
		attempts++
		info, err := l.createMarker(path)
		if err == nil {
			waited := l.now().Sub(start)
			l.state.Lock()
			l.held = true
			l.acquiredAt = info.AcquiredAt
			l.marker = info
			l.state.Unlock()
			l.logger.Debug("lock acquired", "waited_ms", waited.Milliseconds(), "attempts", attempts)
			return append(events, event.NewLockAcquiredEvent(path, waited, attempts)), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return events, fmt.Errorf("create lock marker %s: %w", path, err)
		}

		age, err := l.markerAge(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return events, fmt.Errorf("stat lock marker %s: %w", path, err)
		}
		waited := l.now().Sub(start)
		remaining := timeout - waited
		if remaining <= 0 || (l.maxRetries > 0 && attempts >= l.maxRetries) {
			l.logger.Warn("lock acquisition timed out", "waited_ms", waited.Milliseconds(), "attempts", attempts)
			events = append(events, event.NewLockTimeoutEvent(path, waited, attempts))
			return events, &TimeoutError{Path: path, Waited: waited, Attempts: attempts}
		}

		switch {
		case err != nil:
			// The holder released between our create and stat.
			continue
		case age <= timeout:
			sawLive = true
		case !sawLive && !reclaimed:
			// Stale when first seen: the holder is gone.
			reclaimed = true
			ok, rerr := l.reclaim(path, timeout)
			if rerr != nil {
				return events, rerr
			}
			if ok {
				l.logger.Warn("stale lock recovered", "age", age.String(), "timeout", timeout.String())
				events = append(events, event.NewLockStaleRecoveredEvent(path, age))
			}
			continue
		}
		time.Sleep(min(delays.NextBackOff(), remaining))
	}
}

// Release removes the marker if this process holds it. Releasing a lock that
// is not held is a no-op, so nested or repeated cleanup paths are safe.
func (l *LockFile) Release() error {
	events, err := l.release()
	l.publish(events...)
	return err
}

func (l *LockFile) release() ([]event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.RLock()
	held, ours, acquiredAt := l.held, l.marker, l.acquiredAt
	l.state.RUnlock()
	if !held {
		return nil, nil
	}

	path := l.Path()
	takenOver := false
	current, err := readMarker(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Someone cleared it already.
	case err != nil:
		// Unreadable: a new holder may not have written its body yet.
		takenOver = true
		l.logger.Warn("lock marker unreadable at release, leaving it", "error", err.Error())
	case current.PID != ours.PID || !current.AcquiredAt.Equal(ours.AcquiredAt):
		// Our marker went stale and another holder reclaimed it.
		takenOver = true
		l.logger.Warn("lock marker taken over before release", "holder_pid", current.PID, "holder_host", current.Hostname)
	default:
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove lock marker %s: %w", path, rerr)
		}
	}

	l.state.Lock()
	l.held = false
	l.acquiredAt = time.Time{}
	l.marker = MarkerInfo{}
	l.state.Unlock()

	heldFor := l.now().Sub(acquiredAt)
	l.logger.Debug("lock released", "held_ms", heldFor.Milliseconds())
	return []event.Event{event.NewLockReleasedEvent(path, heldFor, takenOver)}, nil
}

// IsLocked reports whether any process holds a live (non-stale) marker.
// A disabled lock is never locked.
func (l *LockFile) IsLocked() bool {
	timeout := l.Timeout()
	if timeout <= 0 {
		return false
	}
	age, err := l.markerAge(l.Path())
	if err != nil {
		return false
	}
	return age <= timeout
}

// IsStale reports whether a marker exists but is older than the timeout.
func (l *LockFile) IsStale() bool {
	timeout := l.Timeout()
	if timeout <= 0 {
		return false
	}
	age, err := l.markerAge(l.Path())
	return err == nil && age > timeout
}

// Age returns how long ago the marker was last touched.
func (l *LockFile) Age() (time.Duration, error) {
	return l.markerAge(l.Path())
}

// Info reads the marker body. It is for diagnostics only; lock decisions
// use the marker's existence and mtime.
func (l *LockFile) Info() (*MarkerInfo, error) {
	info, err := readMarker(l.Path())
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// HolderAlive reports whether the process named in the marker is running.
// known is false when the marker is absent, unreadable, from another host,
// or liveness cannot be checked on this platform.
func (l *LockFile) HolderAlive() (alive bool, known bool) {
	info, err := l.Info()
	if err != nil || info.Hostname != hostname() {
		return false, false
	}
	return processAlive(info.PID)
}

// Clear removes the marker regardless of who holds it and reports whether
// one existed. Use it to break a lock left by a crashed process.
func (l *LockFile) Clear() (bool, error) {
	existed, err := l.clear()
	if existed {
		l.publish(event.NewLockClearedEvent(l.Path()))
	}
	return existed, err
}

func (l *LockFile) clear() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.Path()
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove lock marker %s: %w", path, err)
	}

	l.state.Lock()
	l.held = false
	l.acquiredAt = time.Time{}
	l.marker = MarkerInfo{}
	l.state.Unlock()

	if err == nil {
		l.logger.Warn("lock marker cleared")
		return true, nil
	}
	return false, nil
}

// Wait blocks until no live marker exists, without taking it. A marker that
// is already stale counts as free. One that was live when first seen must be
// removed by its holder; Wait gives up with a *TimeoutError after the lock
// timeout, or when ctx is done.
func (l *LockFile) Wait(ctx context.Context) error {
	timeout := l.Timeout()
	if timeout <= 0 || l.Held() {
		return nil
	}
	path := l.Path()
	start := l.now()
	delays := l.newBackOff()
	sawLive := false
	attempts := 0
	for {
		attempts++
		age, err := l.markerAge(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil
		case err != nil:
			return fmt.Errorf("stat lock marker %s: %w", path, err)
		case age <= timeout:
			sawLive = true
		case !sawLive:
			return nil
		}
		waited := l.now().Sub(start)
		remaining := timeout - waited
		if remaining <= 0 {
			return &TimeoutError{Path: path, Waited: waited, Attempts: attempts}
		}
		timer := time.NewTimer(min(delays.NextBackOff(), remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *LockFile) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.backoff.Initial
	b.MaxInterval = l.backoff.Max
	b.Multiplier = l.backoff.Multiplier
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// createMarker creates path exclusively and writes our MarkerInfo into it.
func (l *LockFile) createMarker(path string) (MarkerInfo, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return MarkerInfo{}, err
	}
	info := MarkerInfo{
		PID:        os.Getpid(),
		Hostname:   hostname(),
		AcquiredAt: l.now().UTC(),
	}
	data, err := json.Marshal(info)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return MarkerInfo{}, fmt.Errorf("write lock marker: %w", err)
	}
	return info, nil
}

func (l *LockFile) markerAge(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return l.now().Sub(info.ModTime()), nil
}

// reclaim removes a stale marker under an flock so concurrent reclaimers
// re-check staleness one at a time. It reports whether a marker was removed.
func (l *LockFile) reclaim(path string, timeout time.Duration) (bool, error) {
	fl := flock.New(path + reclaimSuffix)
	if err := fl.Lock(); err != nil {
		return false, fmt.Errorf("lock reclaim guard %s: %w", fl.Path(), err)
	}
	defer func() { _ = fl.Unlock() }()

	age, err := l.markerAge(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock marker %s: %w", path, err)
	}
	if age <= timeout {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove stale lock marker %s: %w", path, err)
	}
	return true, nil
}

func (l *LockFile) publish(events ...event.Event) {
	for _, e := range events {
		l.bus.Publish(e)
	}
}

func readMarker(path string) (MarkerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MarkerInfo{}, err
	}
	var info MarkerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return MarkerInfo{}, fmt.Errorf("parse lock marker %s: %w", path, err)
	}
	return info, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
