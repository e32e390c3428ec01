package queue

import (
	"context"
	"time"

	"github.com/sgroy10/excel-to-image-api/internal/errs"
)

// Gate bounds how many office processes run at once. The office suite
// is heavy; an unbounded fan-out would exhaust host memory long before
// the HTTP layer saturates. Waiters queue for a slot until the request
// context ends or the admission timeout elapses, whichever comes first.
type Gate struct {
	slots       chan struct{}
	waitTimeout time.Duration
}

func NewGate(size int, waitTimeout time.Duration) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{
		slots:       make(chan struct{}, size),
		waitTimeout: waitTimeout,
	}
}

// Acquire blocks until a slot is free and returns its release func.
// Release is safe to call exactly once; Acquire callers should defer it.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	var timeout <-chan time.Time
	if g.waitTimeout > 0 {
		t := time.NewTimer(g.waitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, errs.New(errs.Timeout, "conversion queue is full, try again later")
	}
}
