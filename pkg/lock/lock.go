// Package lock provides per-upload run locks, in-process or in Redis.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned by TryLock when another holder owns the key.
var ErrHeld = errors.New("lock already held")

// Locker acquires exclusive, non-blocking locks by key.
type Locker interface {
	// TryLock returns ErrHeld when the key is taken. The returned release
	// function is safe to call more than once.
	TryLock(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock acquires key if it is free.
func (l *Local) TryLock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
