// Package relock implements a reentrant exclusive lock keyed by a logical
// owner carried in a context.Context.
//
// The device session wraps every transport write+read exchange in this lock.
// A single logical operation (for example a backup that issues many reads)
// stamps its context once with WithOwner and may then acquire the lock any
// number of times without deadlocking itself, while other operations observe
// full mutual exclusion until the depth returns to zero.
package relock

import (
	"context"
	"sync"
)

type ownerKeyType struct{}

var ownerKey ownerKeyType

// token identifies a logical owner. Identity is pointer identity; a fresh
// token never compares equal to any other.
type token struct{ _ byte }

// WithOwner returns a context stamped with a new logical owner identity.
// If ctx already carries an owner, it is returned unchanged, so nested
// operations inherit the outermost owner.
func WithOwner(ctx context.Context) context.Context {
	if ctx.Value(ownerKey) != nil {
		return ctx
	}

	return context.WithValue(ctx, ownerKey, &token{})
}

func ownerFrom(ctx context.Context) *token {
	tok, _ := ctx.Value(ownerKey).(*token)
	return tok
}

// Lock is a reentrant exclusive lock.
//
// The zero value is not usable; create instances with New. A logical owner
// must not acquire the lock from multiple goroutines concurrently; the
// reentrancy contract covers nested acquisition within one logical operation.
type Lock struct {
	mu    sync.Mutex
	sem   chan struct{}
	owner *token
	depth int
}

// New creates an unlocked Lock.
func New() *Lock {
	return &Lock{sem: make(chan struct{}, 1)}
}

// Acquire obtains the lock on behalf of the owner carried by ctx.
//
// If the owner already holds the lock, the re-entry depth is incremented and
// Acquire returns immediately. Otherwise Acquire blocks until the lock is
// free or ctx is cancelled. A context without an owner stamp is treated as a
// distinct anonymous owner and never re-enters.
func (l *Lock) Acquire(ctx context.Context) error {
	tok := ownerFrom(ctx)

	l.mu.Lock()
	if tok != nil && l.owner == tok {
		l.depth++
		l.mu.Unlock()

		return nil
	}
	l.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	l.owner = tok
	l.depth = 1
	l.mu.Unlock()

	return nil
}

// Release undoes one Acquire. The underlying exclusion is given up only when
// the re-entry depth returns to zero.
//
// Release must be paired with a successful Acquire, typically via defer so it
// runs on all exit paths.
func (l *Lock) Release() {
	l.mu.Lock()
	if l.depth == 0 {
		l.mu.Unlock()
		panic("relock: release of unheld lock")
	}

	l.depth--
	if l.depth > 0 {
		l.mu.Unlock()

		return
	}

	l.owner = nil
	l.mu.Unlock()
	<-l.sem
}

// Do runs fn while holding the lock, releasing it on all exit paths.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	return fn()
}

// Depth reports the current re-entry depth. Intended for tests and
// diagnostics; the value may be stale by the time it is observed.
func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.depth
}
