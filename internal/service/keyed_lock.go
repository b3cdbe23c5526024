package service

import "sync"

// itemLocks serializes work per item id: command handlers and the
// reconciliation sweep acquire the same lock, so a given item is only ever
// mutated by one goroutine at a time while different items proceed in
// parallel. Entries are reference-counted and dropped when idle.
type itemLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{m: make(map[string]*lockEntry)}
}

// Acquire blocks until the caller owns the lock for id and returns the release
// function.
func (l *itemLocks) Acquire(id string) func() {
	l.mu.Lock()
	entry, ok := l.m[id]
	if !ok {
		entry = &lockEntry{}
		l.m[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
