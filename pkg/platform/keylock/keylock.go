// Package keylock hands out lazily-created per-key mutexes. Components that
// must serialize work on the same entity share one registry; callers that hold
// two locks at once must acquire them in a consistent key order.
package keylock

import "sync"

// Registry maps keys to mutexes, creating each on first use.
type Registry[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{locks: make(map[K]*sync.Mutex)}
}

// Get returns the mutex for key, creating it if needed. The same key always
// yields the same mutex.
func (r *Registry[K]) Get(key K) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
