// Package mirror holds the local copy of one subsystem's server state.
package mirror

import "sync"

// Mirror guards a state value of type S. Writes go through Update and are
// serialized; reads take a copy with Snapshot. Collections inside S must
// be replaced by assigning a freshly built slice or map inside Update,
// never mutated in place, so a snapshot taken earlier stays consistent.
type Mirror[S any] struct {
	mu      sync.RWMutex
	rest    S
	state   S
	version uint64
	frozen  bool
}

// New creates a mirror whose rest value is rest.
func New[S any](rest S) *Mirror[S] {
	return &Mirror[S]{rest: rest, state: rest}
}

// Snapshot returns the current state.
func (m *Mirror[S]) Snapshot() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Update applies fn to the state under the write lock. It returns false,
// without calling fn, once the mirror is frozen.
func (m *Mirror[S]) Update(fn func(*S)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return false
	}
	fn(&m.state)
	m.version++
	return true
}

// Apply is Update for changes that may turn out to be no-ops: fn reports
// whether it modified the state, and only then is the version bumped.
// fn must not modify the state when it returns false.
func (m *Mirror[S]) Apply(fn func(*S) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || !fn(&m.state) {
		return false
	}
	m.version++
	return true
}

// Reset puts the state back to rest.
func (m *Mirror[S]) Reset() bool {
	return m.Update(func(s *S) { *s = m.rest })
}

// Version counts successful updates.
func (m *Mirror[S]) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Freeze stops all further updates. The state keeps its last value.
func (m *Mirror[S]) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (m *Mirror[S]) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}
