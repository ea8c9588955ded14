// Package sessionlock serializes work per key. Concurrent turns for the same
// conversation must observe each other's writes, so each session gets its own
// mutex while unrelated sessions proceed in parallel.
package sessionlock

import "sync"

// Locker hands out one mutex per key.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates a locker
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock acquires the key's mutex, blocking while another holder has it. The
// returned function releases it and must be called exactly once.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
