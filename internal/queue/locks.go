package queue

import (
	"strings"
	"sync"
)

// lockRegistry hands out one mutex per queue id. Queues never share a lock.
// Keys are cloned since callers may pass ids backed by reused request buffers.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) lock(queueID string) func() {
	r.mu.Lock()
	l, ok := r.locks[queueID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[strings.Clone(queueID)] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (r *lockRegistry) forget(queueID string) {
	r.mu.Lock()
	delete(r.locks, queueID)
	r.mu.Unlock()
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
