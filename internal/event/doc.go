// Package event provides a synchronous pub-sub bus for observing lock and
// file lifecycle changes in nxguard.
//
// Lock files publish acquisition, release, stale recovery and timeout events;
// file guards publish reload and flush events. Publishers never depend on who
// is listening, and a nil [Bus] silently discards everything.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeLockStaleRecovered, func(e event.Event) {
//	    rec := e.(event.LockStaleRecoveredEvent)
//	    log.Printf("reclaimed %s (age %s)", rec.Path, rec.Age)
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine and are protected against panics.
package event
