// internal/dedup/expiring_map.go
package dedup

import (
	"sync"
	"time"
)

// expiringMap is a set of keys that drop out after a fixed window. Entries
// are swept lazily on access and by a shared janitor; no per-entry timers.
type expiringMap struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
}

func newExpiringMap(window time.Duration) *expiringMap {
	return &expiringMap{
		window:  window,
		entries: make(map[string]time.Time),
	}
}

// contains reports whether key is present and still inside its window.
func (m *expiringMap) contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline, ok := m.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(deadline) {
		delete(m.entries, key)
		return false
	}
	return true
}

// mark inserts key with a fresh window.
func (m *expiringMap) mark(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = time.Now().Add(m.window)
}

// checkAndMark is the atomic check-then-insert the guards are built on: it
// returns true when key was already live, and refreshes/inserts otherwise.
func (m *expiringMap) checkAndMark(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if deadline, ok := m.entries[key]; ok && now.Before(deadline) {
		return true
	}
	m.entries[key] = now.Add(m.window)
	return false
}

func (m *expiringMap) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *expiringMap) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, deadline := range m.entries {
		if now.After(deadline) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *expiringMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
