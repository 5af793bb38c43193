package nxfile

import (
	"time"

	"github.com/nexpy/nxguard/internal/tree"
)

// Root is the entry point of a file-backed tree. Reads synchronize with disk
// first; writes go through the file's guard.
type Root struct {
	file *FileGuard
}

// File returns the guard controlling the backing file.
func (r *Root) File() *FileGuard { return r.file }

// Mtime returns the mtime the tree was last synchronized against.
func (r *Root) Mtime() time.Time { return r.file.Mtime() }

// Get returns the value of the field at path, reloading first if another
// writer changed the file.
func (r *Root) Get(path string) (any, error) {
	t, err := r.file.synced()
	if err != nil {
		return nil, err
	}
	return t.Get(path)
}

// Set assigns value to the field at path in a guarded write.
func (r *Root) Set(path string, value any) error {
	return r.file.Write(func(t *tree.Tree) error {
		return t.Set(path, value)
	})
}

// Tree returns a private copy of the synchronized tree.
func (r *Root) Tree() (*tree.Tree, error) {
	t, err := r.file.synced()
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}
