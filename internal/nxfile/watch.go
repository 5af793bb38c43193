package nxfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchOps are the events that can change a data file's content or mtime.
// Atomic flushes arrive as a Create (rename into place) followed by a Chmod
// when the mtime is nudged forward.
const watchOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Chmod

// Watch follows changes other writers make to the file. Each time the file
// changes on disk the guard resynchronizes and onChange receives the new
// mtime. Reload failures are logged and retried on the next event, since a
// writer may still be mid-flush. Watch returns nil when ctx is done.
//
// The directory is watched rather than the file because atomic flushes
// replace the file's inode.
func (g *FileGuard) Watch(ctx context.Context, onChange func(time.Time)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(g.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(g.path), err)
	}
	g.logger.Debug("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != g.path || ev.Op&watchOps == 0 {
				continue
			}
			before := g.Mtime()
			if err := g.SyncIfStale(); err != nil {
				g.logger.Warn("sync after change failed", "error", err.Error())
				continue
			}
			if after := g.Mtime(); !after.Equal(before) && onChange != nil {
				onChange(after)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.logger.Warn("watcher error", "error", err.Error())
		}
	}
}
