package clipboard

import "sync"

// roomLocks serializes read-modify-write cycles per room code. Two
// concurrent mutations of the same room would otherwise both read the
// pre-mutation record and the slower write would silently drop the
// faster one's change. Locks are reference counted so expired rooms
// don't accumulate entries.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(code string) {
	l.mu.Lock()
	rl, ok := l.locks[code]
	if !ok {
		rl = &roomLock{}
		l.locks[code] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
}

func (l *roomLocks) unlock(code string) {
	l.mu.Lock()
	rl := l.locks[code]
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, code)
	}
	l.mu.Unlock()

	rl.mu.Unlock()
}
