package bhaktisync

import "sync"

// keyLock serializes read-modify-write sequences per (kind, name, date) key.
// The reconciler's merge and the mutators' optimistic writes are not atomic
// against the store, so the key lock must be held across the whole sequence,
// including any suspension on storage, or a concurrent increment between the
// read and the write would be lost.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// matching unlock function.
func (k *keyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
