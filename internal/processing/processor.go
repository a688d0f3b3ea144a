// Package processing bounds how many pipeline runs execute at once. Each run
// holds a slot for its whole duration; callers wait for a free slot or give
// up when their context ends.
package processing

import (
	"context"
	"errors"
)

// ErrBusy is returned by Acquire when ctx ends before a slot frees up.
var ErrBusy = errors.New("all processing slots busy")

// Limiter is a counting semaphore sized by the configured worker count.
type Limiter struct {
	slots chan struct{}
}

// New builds a Limiter with room for workers concurrent runs.
func New(workers int) *Limiter {
	if workers <= 0 {
		workers = 1
	}
	return &Limiter{slots: make(chan struct{}, workers)}
}

// Acquire blocks until a slot is free or ctx ends. The returned release
// function must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrBusy, ctx.Err())
	}
}

// InUse reports how many slots are currently held.
func (l *Limiter) InUse() int {
	return len(l.slots)
}

// Capacity reports the total number of slots.
func (l *Limiter) Capacity() int {
	return cap(l.slots)
}
