package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "lock.acquired".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeLockAcquired       = "lock.acquired"
	TypeLockReleased       = "lock.released"
	TypeLockStaleRecovered = "lock.stale_recovered"
	TypeLockTimeout        = "lock.timeout"
	TypeLockCleared        = "lock.cleared"
	TypeFileReloaded       = "file.reloaded"
	TypeFileFlushed        = "file.flushed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted when a process takes ownership of a marker.
type LockAcquiredEvent struct {
	baseEvent
	Path     string        // Marker file path
	Waited   time.Duration // Time spent waiting for the marker
	Attempts int           // Number of create attempts
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(path string, waited time.Duration, attempts int) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent(TypeLockAcquired),
		Path:      path,
		Waited:    waited,
		Attempts:  attempts,
	}
}

// LockReleasedEvent is emitted when a held marker is removed.
type LockReleasedEvent struct {
	baseEvent
	Path      string
	HeldFor   time.Duration
	TakenOver bool // The marker had been reclaimed by another holder
}

// NewLockReleasedEvent creates a LockReleasedEvent.
func NewLockReleasedEvent(path string, heldFor time.Duration, takenOver bool) LockReleasedEvent {
	return LockReleasedEvent{
		baseEvent: newBaseEvent(TypeLockReleased),
		Path:      path,
		HeldFor:   heldFor,
		TakenOver: takenOver,
	}
}

// LockStaleRecoveredEvent is emitted when an abandoned marker is cleared
// during acquisition.
type LockStaleRecoveredEvent struct {
	baseEvent
	Path string
	Age  time.Duration // Age of the marker when it was removed
}

// NewLockStaleRecoveredEvent creates a LockStaleRecoveredEvent.
func NewLockStaleRecoveredEvent(path string, age time.Duration) LockStaleRecoveredEvent {
	return LockStaleRecoveredEvent{
		baseEvent: newBaseEvent(TypeLockStaleRecovered),
		Path:      path,
		Age:       age,
	}
}

// LockTimeoutEvent is emitted when acquisition gives up.
type LockTimeoutEvent struct {
	baseEvent
	Path     string
	Waited   time.Duration
	Attempts int
}

// NewLockTimeoutEvent creates a LockTimeoutEvent.
func NewLockTimeoutEvent(path string, waited time.Duration, attempts int) LockTimeoutEvent {
	return LockTimeoutEvent{
		baseEvent: newBaseEvent(TypeLockTimeout),
		Path:      path,
		Waited:    waited,
		Attempts:  attempts,
	}
}

// LockClearedEvent is emitted when a marker is forcibly removed on request.
type LockClearedEvent struct {
	baseEvent
	Path string
}

// NewLockClearedEvent creates a LockClearedEvent.
func NewLockClearedEvent(path string) LockClearedEvent {
	return LockClearedEvent{
		baseEvent: newBaseEvent(TypeLockCleared),
		Path:      path,
	}
}

// -----------------------------------------------------------------------------
// File Events
// -----------------------------------------------------------------------------

// FileReloadedEvent is emitted when a guard discards its in-memory tree because
// the file changed on disk.
type FileReloadedEvent struct {
	baseEvent
	Path     string
	Previous time.Time // Last observed mtime, zero on first load
	Current  time.Time // On-disk mtime that triggered the reload
}

// NewFileReloadedEvent creates a FileReloadedEvent.
func NewFileReloadedEvent(path string, previous, current time.Time) FileReloadedEvent {
	return FileReloadedEvent{
		baseEvent: newBaseEvent(TypeFileReloaded),
		Path:      path,
		Previous:  previous,
		Current:   current,
	}
}

// FileFlushedEvent is emitted after a guarded write reaches disk.
type FileFlushedEvent struct {
	baseEvent
	Path  string
	Mtime time.Time
}

// NewFileFlushedEvent creates a FileFlushedEvent.
func NewFileFlushedEvent(path string, mtime time.Time) FileFlushedEvent {
	return FileFlushedEvent{
		baseEvent: newBaseEvent(TypeFileFlushed),
		Path:      path,
		Mtime:     mtime,
	}
}
