package store

import "sync"

// keyedMutex serializes writes per entity id. Two concurrent merges
// touching the same entities take their locks in sorted order, so they
// cannot deadlock or interleave into a cycle.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// lockPair acquires both ids in sorted order.
func (k *keyedMutex) lockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	unlockA := k.lock(a)
	unlockB := k.lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}
