package contextpg

import (
	"context"
	"sync"
)

// sessionLocks serializes turns per session. Each session gets a
// one-slot semaphore that is dropped once nobody holds or waits for it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the session is free or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.sem <- struct{}{}:
		return func() {
			<-sl.sem
			l.unref(sessionID, sl)
		}, nil
	case <-ctx.Done():
		l.unref(sessionID, sl)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) unref(sessionID string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// held returns the number of sessions with a holder or waiter.
func (l *sessionLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
