package nxfile

import (
	"github.com/spf13/afero"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/filelock"
	"github.com/nexpy/nxguard/internal/logging"
	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

// Manager opens guarded files. It owns the filesystem, the lock registry
// and the logger every guard it creates shares.
type Manager struct {
	fs       afero.Fs
	registry *filelock.Registry
	logger   *logging.Logger
	bus      *event.Bus
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFs sets the filesystem data files live on. Lock markers are always
// created on the OS filesystem.
func WithFs(fsys afero.Fs) ManagerOption {
	return func(m *Manager) {
		if fsys != nil {
			m.fs = fsys
		}
	}
}

// WithRegistry shares an existing lock registry.
func WithRegistry(reg *filelock.Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = reg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBus sets the bus file events are published to. Without a bus the
// registry's bus is used.
func WithBus(bus *event.Bus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager creates a Manager on the OS filesystem with locking disabled
// by default.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		fs:     afero.NewOsFs(),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = filelock.NewRegistry(filelock.WithLogger(m.logger), filelock.WithBus(m.bus))
	}
	if m.bus == nil {
		m.bus = m.registry.Bus()
	}
	return m
}

// Registry returns the lock registry.
func (m *Manager) Registry() *filelock.Registry { return m.registry }

// Bus returns the event bus.
func (m *Manager) Bus() *event.Bus { return m.bus }

// Fs returns the data filesystem.
func (m *Manager) Fs() afero.Fs { return m.fs }

// Open returns a guard for path. The file must exist unless mode is
// storage.WriteCreate. The handle itself is only opened inside scopes.
func (m *Manager) Open(path string, mode storage.Mode) (*FileGuard, error) {
	path = filelock.Canonical(path)
	if mode != storage.WriteCreate {
		if _, err := storage.StatMtime(m.fs, path); err != nil {
			return nil, err
		}
	}
	return &FileGuard{
		mgr:    m,
		path:   path,
		handle: storage.New(m.fs, path, mode),
		logger: m.logger.WithFile(path),
	}, nil
}

// Load opens path and reads its tree.
func (m *Manager) Load(path string, mode storage.Mode) (*Root, error) {
	g, err := m.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := g.SyncIfStale(); err != nil {
		return nil, err
	}
	return &Root{file: g}, nil
}

// Save writes t to path, creating the file if needed, and returns a Root
// bound to it. The write is guarded like any other.
func (m *Manager) Save(path string, t *tree.Tree) (*Root, error) {
	g, err := m.Open(path, storage.WriteCreate)
	if err != nil {
		return nil, err
	}
	acc, err := g.Begin()
	if err != nil {
		return nil, err
	}
	acc.Replace(t)
	if err := acc.Close(); err != nil {
		return nil, err
	}
	return &Root{file: g}, nil
}

// Load opens path with a fresh Manager built from opts.
func Load(path string, mode storage.Mode, opts ...ManagerOption) (*Root, error) {
	return NewManager(opts...).Load(path, mode)
}

// Save writes t to path with a fresh Manager built from opts.
func Save(path string, t *tree.Tree, opts ...ManagerOption) (*Root, error) {
	return NewManager(opts...).Save(path, t)
}
