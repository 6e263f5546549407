package session

import "sync"

type (
	// keyedLocks hands out one mutex per live session key. Entries are
	// refcounted and dropped once the last holder releases
	keyedLocks struct {
		entries map[string]*lockEntry
		mu      sync.Mutex
	}

	lockEntry struct {
		mu   sync.Mutex
		refs int
	}
)

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		entries: map[string]*lockEntry{},
	}
}

func (l *keyedLocks) acquire(key string) *lockEntry {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return e
}

func (l *keyedLocks) release(key string, e *lockEntry) {
	e.mu.Unlock()

	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}
