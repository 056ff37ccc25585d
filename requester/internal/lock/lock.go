// Package lock serializes pipeline runs that share a source and keyword
// signature. Acquire never waits: a held key returns ErrLocked.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/newsnexus/requester/internal/query"
)

// ErrLocked is returned by Acquire when the key is held elsewhere.
var ErrLocked = errors.New("lock: key is held")

// Locker acquires named run-one-at-a-time locks.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key returns the lock key of a (source, keyword triple).
func Key(sourceID, and, or, not string) string {
	return "newsnexus:" + sourceID + ":" + query.Signature(and, or, not)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates a Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire takes key if it is free.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
