// Package guard wraps a value with scoped mutual exclusion: the lock is
// acquired on entry and released on every exit path, including panics.
package guard

import "sync"

// Guard composes a value with the mutex protecting it. Access only
// happens inside With or Try, so the value cannot leak out unlocked.
// Calls must not nest on the same Guard.
type Guard[T any] struct {
	mu  sync.Mutex
	val T
}

// New wraps val.
func New[T any](val T) *Guard[T] {
	return &Guard[T]{val: val}
}

// With runs fn with exclusive access to the guarded value.
func (g *Guard[T]) With(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.val)
}

// Try runs fn only if the lock is free, without blocking. It reports
// whether fn ran.
func (g *Guard[T]) Try(fn func(*T)) bool {
	if !g.mu.TryLock() {
		return false
	}
	defer g.mu.Unlock()
	fn(&g.val)
	return true
}
