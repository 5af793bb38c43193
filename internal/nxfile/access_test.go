package nxfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/filelock"
	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

func TestBeginLockTimeout(t *testing.T) {
	root, path := saveSample(t, newTestManager())
	f := root.File()
	if err := f.SetLockTimeout(1); err != nil {
		t.Fatal(err)
	}

	marker := f.Lock().Path()
	body, _ := json.Marshal(lockfile.MarkerInfo{PID: 999999, Hostname: "elsewhere", AcquiredAt: time.Now()})
	if err := os.WriteFile(marker, body, 0o644); err != nil {
		t.Fatal(err)
	}
	before := diskMtime(t, path)

	err := root.Set("entry/f1", "b")
	if !errors.Is(err, lockfile.ErrLockTimeout) {
		t.Fatalf("Set() error = %v, want ErrLockTimeout", err)
	}
	if !diskMtime(t, path).Equal(before) {
		t.Error("file written despite lock timeout")
	}
	if f.IsOpen() || f.Locked() {
		t.Error("failed scope left the handle open or the lock held")
	}

	// The guard is usable once the holder goes away.
	if err := os.Remove(marker); err != nil {
		t.Fatal(err)
	}
	if err := root.Set("entry/f1", "b"); err != nil {
		t.Fatalf("Set() after marker removal error = %v", err)
	}
}

func TestBeginReclaimsStaleMarker(t *testing.T) {
	root, _ := saveSample(t, newTestManager())
	f := root.File()
	if err := f.SetLockTimeout(30); err != nil {
		t.Fatal(err)
	}

	marker := f.Lock().Path()
	if err := os.WriteFile(marker, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(marker, old, old); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := root.Set("entry/f1", "b"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if waited := time.Since(start); waited > 5*time.Second {
		t.Errorf("stale reclaim took %v", waited)
	}
}

func TestWriteFailureLeavesFileUntouched(t *testing.T) {
	root, path := saveSample(t, newTestManager())
	f := root.File()
	if err := f.SetLockTimeout(5); err != nil {
		t.Fatal(err)
	}
	before := diskMtime(t, path)
	boom := errors.New("boom")

	err := f.Write(func(tr *tree.Tree) error {
		if err := tr.Set("entry/f1", "half"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want boom", err)
	}
	if !diskMtime(t, path).Equal(before) {
		t.Error("failed write flushed the file")
	}
	if got := mustGet(t, root, "entry/f1"); got != "a" {
		t.Errorf("entry/f1 = %v, want a", got)
	}
	if f.Locked() {
		t.Error("lock held after failed write")
	}
}

func TestWritePanicReleasesLock(t *testing.T) {
	root, _ := saveSample(t, newTestManager())
	f := root.File()
	if err := f.SetLockTimeout(5); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		_ = f.Write(func(*tree.Tree) error { panic("boom") })
	}()

	if f.Locked() || f.IsLocked() {
		t.Error("lock held after panic")
	}
	if f.IsOpen() {
		t.Error("handle left open after panic")
	}
	if err := root.Set("entry/f1", "after"); err != nil {
		t.Fatalf("Set() after panic error = %v", err)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	mgr := newTestManager()
	_, path := saveSample(t, mgr)
	root, err := mgr.Load(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Set("entry/f1", "b"); !errors.Is(err, storage.ErrReadOnly) {
		t.Errorf("Set() error = %v, want ErrReadOnly", err)
	}
}

func TestReloadError(t *testing.T) {
	root, path := saveSample(t, newTestManager())

	if err := os.WriteFile(path, []byte("format: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	_, err := root.Get("entry/f1")
	if !errors.Is(err, ErrReload) {
		t.Fatalf("Get() error = %v, want ErrReload", err)
	}
	var re *ReloadError
	if !errors.As(err, &re) || re.Path != root.File().Path() {
		t.Errorf("error = %#v, want *ReloadError for %s", err, path)
	}
	if root.File().Tree() != nil {
		t.Error("snapshot kept after failed reload")
	}

	// The file is repaired; the next read recovers.
	data, err := storage.Encode(sampleTree(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	later := future.Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, root, "entry/f1"); got != "a" {
		t.Errorf("entry/f1 = %v, want a", got)
	}
}

func TestAccessScope(t *testing.T) {
	root, path := saveSample(t, newTestManager())
	f := root.File()
	if err := f.SetLockTimeout(5); err != nil {
		t.Fatal(err)
	}

	acc, err := f.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsOpen() || !f.Locked() {
		t.Error("scope should open the handle and hold the lock")
	}
	if err := acc.Set("entry/f1", "x"); err != nil {
		t.Fatal(err)
	}
	if err := acc.Set("entry/f2", 2); err != nil {
		t.Fatal(err)
	}
	if err := acc.Set("missing/f3", 3); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("Set(missing/f3) error = %v, want ErrNotFound", err)
	}
	if v, _ := acc.Get("entry/f1"); v != "x" {
		t.Errorf("scope view entry/f1 = %v, want x", v)
	}
	if !acc.Dirty() {
		t.Error("Dirty() = false after Set")
	}
	// Nothing reaches disk before Close.
	if got, _ := f.Tree().Get("entry/f1"); got != "a" {
		t.Errorf("published snapshot changed before Close: %v", got)
	}

	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := acc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := acc.Set("entry/f1", "y"); !errors.Is(err, ErrScopeClosed) {
		t.Errorf("Set() after Close error = %v, want ErrScopeClosed", err)
	}
	if f.IsOpen() || f.Locked() {
		t.Error("Close left the handle open or the lock held")
	}
	if !f.Mtime().Equal(diskMtime(t, path)) {
		t.Error("observed mtime not refreshed after flush")
	}

	fresh, err := NewManager().Load(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, fresh, "entry/f2"); got != 2 {
		t.Errorf("entry/f2 = %v, want 2", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := NewManager().Open(filepath.Join(t.TempDir(), "nope.nxs"), storage.ReadOnly)
	if !errors.Is(err, storage.ErrStorage) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want ErrStorage wrapping ErrNotExist", err)
	}
}

func TestUpdateValue(t *testing.T) {
	root, _ := saveSample(t, newTestManager())
	f := root.File()

	inc := func(n int) (int, error) { return n + 1, nil }
	for range 3 {
		if err := UpdateValue(f, "entry/count", inc); err != nil {
			t.Fatal(err)
		}
	}
	if got := mustGet(t, root, "entry/count"); got != 3 {
		t.Errorf("entry/count = %v, want 3", got)
	}

	if err := UpdateValue(f, "entry/f1", inc); err == nil {
		t.Error("UpdateValue on a string field should fail")
	}

	if err := WriteValue(f, "entry/f1", "typed"); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, root, "entry/f1"); got != "typed" {
		t.Errorf("entry/f1 = %v, want typed", got)
	}
}

func TestConcurrentWritersNoLostUpdates(t *testing.T) {
	_, path := saveSample(t, newTestManager())

	const writers, increments = 4, 10
	p := pool.New().WithErrors()
	for range writers {
		// A manager per writer gives each its own registry and lock
		// instance, so only the marker file arbitrates between them.
		mgr := newTestManager(filelock.WithDefaultTimeout(10 * time.Second))
		p.Go(func() error {
			root, err := mgr.Load(path, storage.ReadWrite)
			if err != nil {
				return err
			}
			for range increments {
				if err := UpdateValue(root.File(), "entry/count", func(n int) (int, error) {
					return n + 1, nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}

	root, err := NewManager().Load(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, root, "entry/count"); got != writers*increments {
		t.Errorf("entry/count = %v, want %d", got, writers*increments)
	}
}

func TestConcurrentGuardsSharingManager(t *testing.T) {
	mgr := newTestManager(filelock.WithDefaultTimeout(10 * time.Second))
	_, path := saveSample(t, mgr)

	const writers, increments = 4, 10
	p := pool.New().WithErrors()
	for range writers {
		p.Go(func() error {
			root, err := mgr.Load(path, storage.ReadWrite)
			if err != nil {
				return err
			}
			for range increments {
				if err := UpdateValue(root.File(), "entry/count", func(n int) (int, error) {
					return n + 1, nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}

	root, err := mgr.Load(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, root, "entry/count"); got != writers*increments {
		t.Errorf("entry/count = %v, want %d", got, writers*increments)
	}
}

func TestWriteEvents(t *testing.T) {
	bus := event.NewBus()
	mgr := NewManager(WithBus(bus))
	root, _ := saveSample(t, mgr)
	if err := root.File().SetLockTimeout(5); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.EventType())
	})

	if err := root.Set("entry/f1", "b"); err != nil {
		t.Fatal(err)
	}

	want := []string{event.TypeLockAcquired, event.TypeFileFlushed, event.TypeLockReleased}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWatch(t *testing.T) {
	mgr := newTestManager()
	_, path := saveSample(t, mgr)
	watched, err := mgr.Load(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan time.Time, 8)
	done := make(chan error, 1)
	go func() {
		done <- watched.File().Watch(ctx, func(m time.Time) {
			select {
			case changes <- m:
			default:
			}
		})
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	}()

	writer, err := NewManager().Load(path, storage.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	// The watcher may not be registered yet; keep writing until it reports.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		if err := writer.Set("entry/f1", i); err != nil {
			t.Fatal(err)
		}
		select {
		case m := <-changes:
			if m.Before(watched.Mtime()) {
				t.Errorf("reported mtime %v is older than observed %v", m, watched.Mtime())
			}
			return
		case <-ticker.C:
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

func TestParseLockSetting(t *testing.T) {
	tests := []struct {
		in      string
		want    LockSetting
		wantErr bool
	}{
		{in: "off", want: Disabled},
		{in: "", want: Disabled},
		{in: "0", want: Disabled},
		{in: "-3", want: Disabled},
		{in: "default", want: UseDefault},
		{in: "true", want: UseDefault},
		{in: "20", want: Explicit(20)},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLockSetting(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLockSetting(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLockSetting(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
	if Explicit(20).Timeout() != 20*time.Second || UseDefault.Timeout() != lockfile.DefaultTimeout {
		t.Error("Timeout() resolved incorrectly")
	}
}
