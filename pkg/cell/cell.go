// Package cell provides a single-slot, closeable rendezvous primitive for
// passing requests and results between the UI loop and the analysis worker.
//
// A Cell is Empty, Filled, or Closed. Set fills an empty cell and wakes
// every waiter; Closed is terminal and releases all waiters with ErrClosed.
// Waking everyone (rather than one waiter) keeps cancellation reasoning
// simple when multiple readers coexist.
//
// Blocking reads take a context.Context and never an epoch token: pinning
// across a suspension is the failure mode the reclaim package exists to
// prevent, so the API leaves no way to do it.
package cell

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors. ErrClosed is the normal cancellation signal; ErrFilled
// reports a protocol violation (two Sets in one request/response cycle).
var (
	ErrClosed = errors.New("cell: closed")
	ErrFilled = errors.New("cell: already filled")
)

// State of a cell. Exposed for tests and debug output.
type State int32

const (
	Empty State = iota
	Filled
	Closed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Filled:
		return "filled"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Cell is a single-slot asynchronous cell. The zero value is not usable;
// call New.
type Cell[T any] struct {
	mu    sync.Mutex
	state State
	value T
	wake  chan struct{} // closed and replaced on every Empty -> Filled / Closed transition
}

// New returns an empty cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{wake: make(chan struct{})}
}

// Set transitions Empty -> Filled and wakes all waiters. Setting a filled
// cell returns ErrFilled: a request/response cycle fills a cell at most
// once. Setting a closed cell returns ErrClosed.
func (c *Cell[T]) Set(v T) error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Filled:
		c.mu.Unlock()
		return ErrFilled
	}
	c.value = v
	c.state = Filled
	wake := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()

	close(wake)
	return nil
}

// Get returns a copy of the value without consuming it. It resolves
// immediately if the cell is Filled, suspends while Empty, and returns
// ErrClosed once the cell is closed. ctx bounds the wait.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case Filled:
			v := c.value
			c.mu.Unlock()
			return v, nil
		case Closed:
			c.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Take consumes the value, transitioning Filled -> Empty. Like Get it
// suspends while Empty and returns ErrClosed once the cell is closed.
func (c *Cell[T]) Take(ctx context.Context) (T, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case Filled:
			v := c.value
			var zero T
			c.value = zero
			c.state = Empty
			c.mu.Unlock()
			return v, nil
		case Closed:
			c.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryGet is the non-blocking form of Get, for callers that must never
// suspend (the render loop).
func (c *Cell[T]) TryGet() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Filled {
		var zero T
		return zero, false
	}
	return c.value, true
}

// TryTake is the non-blocking form of Take.
func (c *Cell[T]) TryTake() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Filled {
		var zero T
		return zero, false
	}
	v := c.value
	var zero T
	c.value = zero
	c.state = Empty
	return v, true
}

// Close moves the cell to its terminal state and wakes all waiters with
// absence. Close is idempotent. It is the only way to unblock a waiter
// without a value, and is invoked transitively by Owner.Kill through the
// owning aggregate's kill hooks.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	var zero T
	c.value = zero
	c.state = Closed
	wake := c.wake
	c.mu.Unlock()

	close(wake)
}

// State returns the cell's current state.
func (c *Cell[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Closed reports whether the cell has been closed.
func (c *Cell[T]) Closed() bool {
	return c.State() == Closed
}
