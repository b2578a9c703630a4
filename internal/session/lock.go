package session

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes turns per session id within this process. Waiters queue
// until the holder unlocks or their context ends.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until id is free. The returned unlock func is idempotent.
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	if id == "" {
		return nil, ErrMissingSessionID
	}

	l.mu.Lock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, kl)
		return nil, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(id, kl)
		})
	}, nil
}

func (l *Locker) release(id string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
}

// held reports how many ids currently have holders or waiters.
func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
