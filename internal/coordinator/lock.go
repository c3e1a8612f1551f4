package coordinator

import "sync"

// pairLocks serializes join/leave style flows per (room, user) pair. Entries
// are reference counted and removed once the last holder releases, so the
// map does not grow with every pair ever seen.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLock)}
}

// lock acquires the mutex for the pair and returns its release func.
func (p *pairLocks) lock(roomToken, userToken string) func() {
	key := roomToken + "\x00" + userToken

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
