package dispatch

import (
	"context"
	"sync"
)

// LaneLock serializes work per key while letting different keys proceed in
// parallel. Unlike a plain mutex, waiting honours context cancellation.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane is a one-slot semaphore. refs counts holders and waiters; the lane
// is dropped from the map when it reaches zero.
type lane struct {
	slot chan struct{}
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[string]*lane)}
}

// Acquire blocks until the lane for key is free or ctx is done. On success
// the caller must call Release with the same key.
func (l *LaneLock) Acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	select {
	case ln.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, ln)
		return ctx.Err()
	}
}

// Release frees the lane for key.
func (l *LaneLock) Release(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-ln.slot
	l.unref(key, ln)
}

func (l *LaneLock) unref(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}

// Len returns the number of lanes currently held or awaited.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
