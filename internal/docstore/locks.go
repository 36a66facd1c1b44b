package docstore

import (
	"context"
	"sync"
)

// keyLock is a mutex that can be waited on with a context.
type keyLock struct {
	sem  chan struct{}
	refs int // holder plus waiters; guarded by lockRegistry.mu
}

// lockRegistry hands out one lock per key.
//
// Entries are created on first use and removed when the last holder or waiter
// lets go, so the registry only grows with the number of keys in flight.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*keyLock)}
}

// acquire blocks until the lock for key is held or ctx is done.
//
// The returned release function must be called exactly once.
func (r *lockRegistry) acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	l := r.locks[key]
	if l == nil {
		l = &keyLock{sem: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				r.unref(key, l)
			})
		}, nil
	case <-ctx.Done():
		r.unref(key, l)
		return nil, ctx.Err()
	}
}

func (r *lockRegistry) unref(key string, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

// len returns the number of keys currently locked or waited on.
func (r *lockRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
