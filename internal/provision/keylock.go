package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/simplesurance/classportal/internal/portalerr"
)

// Locker provides mutual exclusion per key.
// The returned release function must be called exactly once.
type Locker interface {
	// Lock blocks until the lock for key was acquired or ctx is done.
	Lock(ctx context.Context, key string) (release func(), err error)
	// TryLock acquires the lock if it is free, otherwise it fails with an
	// error wrapping portalerr.ErrLockContention.
	TryLock(ctx context.Context, key string) (release func(), err error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker.
// Locks of unused keys are removed.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyLock{}}
}

func (m *KeyedMutex) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.locks[key]
	if !exists {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}

	l.refs++

	return l
}

func (m *KeyedMutex) unref(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *KeyedMutex) releaseFn(key string, l *keyLock) func() {
	var once sync.Once

	return func() {
		once.Do(func() {
			<-l.ch
			m.unref(key, l)
		})
	}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	l := m.ref(key)

	select {
	case l.ch <- struct{}{}:
		return m.releaseFn(key, l), nil

	case <-ctx.Done():
		m.unref(key, l)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) TryLock(_ context.Context, key string) (func(), error) {
	l := m.ref(key)

	select {
	case l.ch <- struct{}{}:
		return m.releaseFn(key, l), nil

	default:
		m.unref(key, l)
		return nil, fmt.Errorf("%s: %w", key, portalerr.ErrLockContention)
	}
}

// len returns the number of keys that are locked or waited for.
func (m *KeyedMutex) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}
