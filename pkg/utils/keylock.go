package utils

import "sync"

// KeyLock provides a mutex per string key so callers can serialize work on one
// key while different keys proceed in parallel. Locks are created on first use
// and kept for the lifetime of the KeyLock; the expected key population
// (session × contact) is small enough that eviction is not worth the
// bookkeeping.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLock creates an empty KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed.
func (k *KeyLock) Lock(key string) {
	k.mutexFor(key).Lock()
}

// Unlock releases the mutex for key. Unlocking a key that was never locked
// panics, same as sync.Mutex.
func (k *KeyLock) Unlock(key string) {
	k.mutexFor(key).Unlock()
}

func (k *KeyLock) mutexFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
