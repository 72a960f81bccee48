package scheduler

import "sync"

// LockManager hands out one mutex per storage backend name so that tasks
// sharing a backend serialize their load and save phases. Locks are created
// lazily and never removed; the map is bounded by the number of distinct
// backends, not by task count.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates an empty registry
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*sync.Mutex)}
}

// GetLock returns the lock for a key, creating it on first use. Repeated
// calls with the same key return the same lock instance.
func (m *LockManager) GetLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, ok := m.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[key] = lock
	return lock
}
