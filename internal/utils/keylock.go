package utils

import "sync"

// KeyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex[K]) Lock(key K) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[K]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently tracked.
func (k *KeyedMutex[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
