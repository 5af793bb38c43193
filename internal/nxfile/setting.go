package nxfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nexpy/nxguard/internal/lockfile"
)

type settingKind int

const (
	settingUnset settingKind = iota
	settingDisabled
	settingDefault
	settingExplicit
)

// LockSetting selects how a guard is locked: not at all, with the built-in
// default timeout, or with an explicit number of seconds. The zero value
// follows the registry's process default at each access.
type LockSetting struct {
	kind    settingKind
	seconds int
}

var (
	// Disabled removes the guard's lock.
	Disabled = LockSetting{kind: settingDisabled}

	// UseDefault locks with lockfile.DefaultTimeout, regardless of the
	// registry's process default.
	UseDefault = LockSetting{kind: settingDefault}
)

// Explicit locks with a timeout of seconds. Non-positive values disable.
func Explicit(seconds int) LockSetting {
	if seconds <= 0 {
		return Disabled
	}
	return LockSetting{kind: settingExplicit, seconds: seconds}
}

// ParseLockSetting accepts "off", "on"/"default", or a number of seconds.
func ParseLockSetting(s string) (LockSetting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "false", "no", "none":
		return Disabled, nil
	case "on", "true", "yes", "default":
		return UseDefault, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return LockSetting{}, fmt.Errorf("invalid lock setting %q: want off, default, or seconds", s)
	}
	return Explicit(n), nil
}

// Timeout returns the lock timeout the setting resolves to. An unset
// setting reports zero because it depends on the registry.
func (s LockSetting) Timeout() time.Duration {
	switch s.kind {
	case settingDefault:
		return lockfile.DefaultTimeout
	case settingExplicit:
		return time.Duration(s.seconds) * time.Second
	default:
		return 0
	}
}

// IsSet reports whether the setting overrides the process default.
func (s LockSetting) IsSet() bool { return s.kind != settingUnset }

func (s LockSetting) String() string {
	switch s.kind {
	case settingDisabled:
		return "disabled"
	case settingDefault:
		return "default"
	case settingExplicit:
		return fmt.Sprintf("%ds", s.seconds)
	default:
		return "unset"
	}
}

// LockState describes a guard's lock lifecycle.
type LockState int

const (
	// LockUnconfigured means the guard has no lock.
	LockUnconfigured LockState = iota
	// LockConfigured means a lock exists but is not held.
	LockConfigured
	// LockAcquiring means the guard is waiting for the marker.
	LockAcquiring
	// LockHeld means this process holds the marker.
	LockHeld
)

func (s LockState) String() string {
	switch s {
	case LockUnconfigured:
		return "unconfigured"
	case LockConfigured:
		return "configured"
	case LockAcquiring:
		return "acquiring"
	case LockHeld:
		return "held"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}
