package event

import (
	"sync"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeLockAcquired, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeLockAcquired, func(e Event) {
		received = e
	})

	bus.Publish(NewLockAcquiredEvent("/data/file.nxs.lock", 20*time.Millisecond, 3))

	if received == nil {
		t.Fatal("handler should have received the event")
	}
	acquired, ok := received.(LockAcquiredEvent)
	if !ok {
		t.Fatalf("event type = %T, want LockAcquiredEvent", received)
	}
	if acquired.Path != "/data/file.nxs.lock" {
		t.Errorf("Path = %q, want %q", acquired.Path, "/data/file.nxs.lock")
	}
	if acquired.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", acquired.Attempts)
	}
}

func TestBus_PublishOrdering(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeLockReleased, func(e Event) { order = append(order, "first") })
	bus.Subscribe(TypeLockReleased, func(e Event) { order = append(order, "second") })

	bus.Publish(NewLockReleasedEvent("a.lock", time.Second, false))

	want := []string{"first", "second", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeLockTimeout, func(e Event) {
		t.Error("handler should not be called for non-matching event type")
	})

	bus.Publish(NewLockClearedEvent("a.lock"))
}

func TestBus_NilBusDiscards(t *testing.T) {
	var bus *Bus
	// Must not panic.
	bus.Publish(NewLockClearedEvent("a.lock"))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(TypeFileReloaded, func(e Event) { calls++ })
	keep := bus.Subscribe(TypeFileReloaded, func(e Event) { calls += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() = false for known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe() = true for already removed ID")
	}

	bus.Publish(NewFileReloadedEvent("f.nxs", time.Time{}, time.Now()))
	if calls != 10 {
		t.Errorf("calls = %d, want 10 (only the remaining handler)", calls)
	}

	if !bus.Unsubscribe(keep) {
		t.Error("Unsubscribe() = false for remaining ID")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(TypeLockTimeout, func(e Event) { panic("boom") })
	bus.Subscribe(TypeLockTimeout, func(e Event) { called = true })

	bus.Publish(NewLockTimeoutEvent("a.lock", time.Second, 4))

	if !called {
		t.Error("handler after a panicking handler should still be called")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeLockAcquired, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear, want 0", bus.SubscriptionCount())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(TypeFileFlushed, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(NewFileFlushedEvent("f.nxs", time.Now()))
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestEventTimestamps(t *testing.T) {
	before := time.Now()
	e := NewLockStaleRecoveredEvent("a.lock", time.Minute)
	after := time.Now()

	if e.EventType() != TypeLockStaleRecovered {
		t.Errorf("EventType() = %q, want %q", e.EventType(), TypeLockStaleRecovered)
	}
	if e.Timestamp().Before(before) || e.Timestamp().After(after) {
		t.Errorf("Timestamp() = %v, want between %v and %v", e.Timestamp(), before, after)
	}
}
