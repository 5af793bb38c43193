package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nexpy/nxguard/internal/tree"
)

// Mode is the access mode of a handle.
type Mode int

const (
	// ReadOnly opens an existing file for reading.
	ReadOnly Mode = iota
	// ReadWrite opens an existing file for reading and writing.
	ReadWrite
	// WriteCreate opens a file for writing, creating it when absent. An
	// existing file is left untouched until the first flush.
	WriteCreate
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "r"
	case ReadWrite:
		return "rw"
	case WriteCreate:
		return "w"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the short mode names used on the command line.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r", "ro", "read":
		return ReadOnly, nil
	case "rw", "r+", "a":
		return ReadWrite, nil
	case "w", "w-", "create":
		return WriteCreate, nil
	default:
		return 0, fmt.Errorf("unknown file mode %q", s)
	}
}

// mtimeSteps are tried in order when a flush does not advance the mtime.
var mtimeSteps = []time.Duration{time.Microsecond, time.Millisecond, time.Second}

// Handle is a session on one data file. Handles can be opened and closed
// repeatedly; their identity outlives any single session.
type Handle struct {
	fs   afero.Fs
	path string
	mode Mode

	mu   sync.Mutex
	open bool
}

// New returns a closed handle for path.
func New(fsys afero.Fs, path string, mode Mode) *Handle {
	return &Handle{fs: fsys, path: path, mode: mode}
}

// Open returns a handle for path that is already open.
func Open(fsys afero.Fs, path string, mode Mode) (*Handle, error) {
	h := New(fsys, path, mode)
	if err := h.Open(); err != nil {
		return nil, err
	}
	return h, nil
}

// Path returns the data file path.
func (h *Handle) Path() string { return h.path }

// Mode returns the access mode.
func (h *Handle) Mode() Mode { return h.mode }

// Writable reports whether the mode permits flushing.
func (h *Handle) Writable() bool { return h.mode != ReadOnly }

// IsOpen reports whether a session is active.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Open starts a session. Opening an open handle is a no-op.
func (h *Handle) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.open {
		return nil
	}
	switch h.mode {
	case WriteCreate:
		if err := h.fs.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
			return ioErr("open", h.path, err)
		}
		f, err := h.fs.OpenFile(h.path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return ioErr("open", h.path, err)
		}
		if err := f.Close(); err != nil {
			return ioErr("open", h.path, err)
		}
	default:
		info, err := h.fs.Stat(h.path)
		if err != nil {
			return ioErr("open", h.path, err)
		}
		if info.IsDir() {
			return ioErr("open", h.path, errors.New("is a directory"))
		}
	}
	h.open = true
	return nil
}

// Close ends the session. Closing a closed handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = false
	return nil
}

// Mtime returns the on-disk modification time.
func (h *Handle) Mtime() (time.Time, error) {
	return StatMtime(h.fs, h.path)
}

// Reload reads and decodes the file. It does not require an open session so
// guards can resynchronize read-only views cheaply.
func (h *Handle) Reload() (*tree.Tree, error) {
	data, err := afero.ReadFile(h.fs, h.path)
	if err != nil {
		return nil, ioErr("read", h.path, err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, ioErr("decode", h.path, err)
	}
	return t, nil
}

// Flush writes t to disk atomically and guarantees the resulting mtime is
// later than the mtime before the call.
func (h *Handle) Flush(t *tree.Tree) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.open {
		return ioErr("flush", h.path, ErrClosed)
	}
	if !h.Writable() {
		return ioErr("flush", h.path, ErrReadOnly)
	}

	prev, err := StatMtime(h.fs, h.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	data, err := Encode(t)
	if err != nil {
		return ioErr("flush", h.path, err)
	}
	if err := h.writeAtomic(data); err != nil {
		return ioErr("flush", h.path, err)
	}
	if !prev.IsZero() {
		if err := h.advanceMtime(prev); err != nil {
			return ioErr("flush", h.path, err)
		}
	}
	return nil
}

func (h *Handle) writeAtomic(data []byte) error {
	dir, base := filepath.Split(h.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(h.fs, dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = h.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := h.fs.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := h.fs.Rename(tmpName, h.path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// advanceMtime nudges the file's mtime past prev when the filesystem clock
// granularity left it unchanged.
func (h *Handle) advanceMtime(prev time.Time) error {
	for _, step := range mtimeSteps {
		cur, err := StatMtime(h.fs, h.path)
		if err != nil {
			return err
		}
		if cur.After(prev) {
			return nil
		}
		target := prev.Add(step)
		if err := h.fs.Chtimes(h.path, target, target); err != nil {
			return err
		}
	}
	cur, err := StatMtime(h.fs, h.path)
	if err != nil {
		return err
	}
	if !cur.After(prev) {
		return fmt.Errorf("mtime did not advance past %s", prev.Format(time.RFC3339Nano))
	}
	return nil
}

// StatMtime returns the modification time of path.
func StatMtime(fsys afero.Fs, path string) (time.Time, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return time.Time{}, ioErr("stat", path, err)
	}
	return info.ModTime(), nil
}
