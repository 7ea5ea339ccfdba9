package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration collapses event bursts from one checkpoint write
// into a single notification.
const DefaultDebounceDuration = 250 * time.Millisecond

// Debouncer coalesces rapid triggers: fn runs once, d after the last
// Trigger in a burst.
type Debouncer struct {
	d  time.Duration
	mu sync.Mutex
	t  *time.Timer
}

// NewDebouncer returns a debouncer with the given quiet window. A
// non-positive window disables coalescing; Trigger runs fn immediately.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{d: d}
}

// Trigger schedules fn after the quiet window, resetting the window if a
// timer is already pending. The pending fn is replaced, not queued.
func (d *Debouncer) Trigger(fn func()) {
	if d.d <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(d.d, fn)
}

// Cancel drops any pending trigger.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}
}
