package orchestration

import "sync"

// ThreadLocks serializes turns on the same thread inside one process.
// Cross-process writers are caught by the checkpoint version check instead.
type ThreadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// NewThreadLocks creates an empty lock table.
func NewThreadLocks() *ThreadLocks {
	return &ThreadLocks{locks: make(map[string]*threadLock)}
}

// Lock blocks until threadID is free and returns its unlock function.
func (l *ThreadLocks) Lock(threadID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, threadID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of threads currently locked or waited on.
func (l *ThreadLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
