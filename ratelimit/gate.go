package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of embedding calls allowed in flight.
const DefaultConcurrency = 5

// ErrInvalidConcurrency is returned when a gate is created with a size below one.
var ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

// Gate bounds the number of concurrent operations. Waiters are admitted in
// arrival order; a waiter whose context ends leaves the queue without
// consuming a slot.
type Gate struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	waiting  atomic.Int64
	total    atomic.Int64
}

// GateStats is a point-in-time view of a Gate.
type GateStats struct {
	Size     int64
	InFlight int64
	Waiting  int64
	Total    int64
}

// NewGate creates a gate admitting at most size concurrent operations.
func NewGate(size int) (*Gate, error) {
	if size < 1 {
		return nil, ErrInvalidConcurrency
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}, nil
}

// Acquire blocks until a slot is free or ctx ends.
func (g *Gate) Acquire(ctx context.Context) error {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return err
	}
	g.inFlight.Add(1)
	g.total.Add(1)
	return nil
}

// Release frees a slot obtained by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Do runs fn while holding a slot.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Stats returns the current counters.
func (g *Gate) Stats() GateStats {
	return GateStats{
		Size:     g.size,
		InFlight: g.inFlight.Load(),
		Waiting:  g.waiting.Load(),
		Total:    g.total.Load(),
	}
}
