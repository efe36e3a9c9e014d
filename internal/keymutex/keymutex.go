// Package keymutex provides mutual exclusion scoped to a string key, so that
// holders of different keys never block each other.
package keymutex

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyMutex is safe for concurrent use. The zero value is not usable; call New.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

func (k *KeyMutex) acquireRef(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyMutex) dropRef(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the key and must be called exactly once.
func (k *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	e := k.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return k.unlocker(key, e), nil
	case <-ctx.Done():
		k.dropRef(key, e)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free right now.
func (k *KeyMutex) TryLock(key string) (func(), bool) {
	e := k.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return k.unlocker(key, e), true
	default:
		k.dropRef(key, e)
		return nil, false
	}
}

func (k *KeyMutex) unlocker(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.dropRef(key, e)
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
