package teller

import (
	"sort"
	"sync"
)

// Locker is a keyed mutex. Entries are reference counted and dropped once no
// goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty keyed mutex.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in sorted order, ignoring duplicates, and returns
// the function that releases them.
func (l *Locker) Lock(keys ...string) func() {
	ordered := sortedUnique(keys)
	held := make([]*keyLock, 0, len(ordered))
	for _, key := range ordered {
		held = append(held, l.acquire(key))
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.release(ordered[i], held[i])
		}
	}
}

func (l *Locker) acquire(key string) *keyLock {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (l *Locker) release(key string, entry *keyLock) {
	entry.mu.Unlock()

	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// size reports how many keys are currently tracked.
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}
