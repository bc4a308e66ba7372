package review

import (
	"sync"

	"github.com/google/uuid"
)

// entityLocks serializes concurrent decisions touching the same entity.
// The transaction guards correctness on its own; the lock keeps the
// second reviewer from burning a transaction just to learn they lost.
type entityLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: map[uuid.UUID]*entityLock{}}
}

// Lock acquires the per-entity mutex and returns its release func.
func (e *entityLocks) Lock(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &entityLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}
