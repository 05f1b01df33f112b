package debounce

import (
	"sync"
	"time"
)

// Group keeps one Debouncer per key. Each Trigger replaces the action for
// its key, so only the latest action of a burst runs.
type Group[K comparable] struct {
	delay time.Duration

	mu      sync.Mutex
	entries map[K]*groupEntry
}

type groupEntry struct {
	d      *Debouncer
	action func()
}

// NewGroup returns an empty Group.
func NewGroup[K comparable](delay time.Duration) *Group[K] {
	return &Group[K]{delay: delay, entries: make(map[K]*groupEntry)}
}

// Trigger schedules action for key, replacing any pending one.
func (g *Group[K]) Trigger(key K, action func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &groupEntry{}
		e.d = New(g.delay, func() { g.run(key, e) })
		g.entries[key] = e
	}
	e.action = action
	e.d.Trigger()
}

// Flush runs the pending action for key now.
func (g *Group[K]) Flush(key K) {
	g.mu.Lock()
	e, ok := g.entries[key]
	g.mu.Unlock()
	if ok {
		e.d.Flush()
	}
}

// FlushAll runs every pending action.
func (g *Group[K]) FlushAll() {
	g.mu.Lock()
	entries := make([]*groupEntry, 0, len(g.entries))
	for _, e := range g.entries {
		entries = append(entries, e)
	}
	g.mu.Unlock()

	for _, e := range entries {
		e.d.Flush()
	}
}

// Cancel drops the pending action for key.
func (g *Group[K]) Cancel(key K) {
	g.mu.Lock()
	e, ok := g.entries[key]
	delete(g.entries, key)
	g.mu.Unlock()
	if ok {
		e.d.Stop()
	}
}

// Len returns the number of keys with a pending action.
func (g *Group[K]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *Group[K]) run(key K, e *groupEntry) {
	g.mu.Lock()
	if g.entries[key] != e {
		g.mu.Unlock()
		return
	}
	delete(g.entries, key)
	action := e.action
	g.mu.Unlock()

	if action != nil {
		action()
	}
}
