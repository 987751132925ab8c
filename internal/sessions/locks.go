package sessions

import "sync"

// Locks serializes mutating operations per session identity. Close, record,
// import, and score calls for the same session must not interleave (the
// score derivation reads an aggregate that a concurrent ingest could move);
// operations on different sessions proceed in parallel.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function. Keys are
// session ids, or "date:YYYY-MM-DD" before an id exists.
func (l *Locks) Lock(key string) func() {
	l.mu.Lock()
	mu, ok := l.m[key]
	if !ok {
		mu = &sync.Mutex{}
		l.m[key] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}
