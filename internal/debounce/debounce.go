// Package debounce coalesces bursts of triggers into a single flush after
// a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs flush once delay has elapsed since the last Trigger.
// flush should be idempotent: Flush and the timer never both run it for
// the same burst, but callers may force it at any time.
type Debouncer struct {
	delay time.Duration
	flush func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every Trigger, Flush and Stop; stale timers compare against it
	pending bool
}

// New returns a Debouncer. A non-positive delay flushes on the next tick.
func New(delay time.Duration, flush func()) *Debouncer {
	return &Debouncer{delay: delay, flush: flush}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush runs a pending flush now. It is a no-op when nothing is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	d.mu.Unlock()

	d.flush()
}

// Stop discards a pending flush.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Pending reports whether a flush is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.flush()
}

func (d *Debouncer) cancelLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
