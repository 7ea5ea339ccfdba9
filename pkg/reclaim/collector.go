// Package reclaim implements epoch-based deferred reclamation for values
// shared between the UI loop and the analysis worker.
//
// Go's garbage collector keeps memory alive for us, but it cannot run the
// explicit teardown an abandoned analysis needs (closing its cells, waking
// blocked waiters, releasing pooled buffers) at a moment when no reader can
// still observe the value. The collector fills that gap: readers pin a
// short-lived Token before dereferencing a Weak accessor, owners retire
// finalizers instead of running them inline, and a finalizer runs only once
// every token that could have observed the value is gone.
//
// Tokens are stack-bound. Never hold one across a blocking operation; cell
// waits deliberately take a context, not a Token, so there is no way to
// carry a pin into a suspension. Prefer WithPin, which scopes the token to a
// callback.
package reclaim

import (
	"math"
	"sync"
)

// Collector tracks pinned tokens across goroutines and decides when retired
// finalizers are safe to run.
//
// The zero value is not usable; call NewCollector.
type Collector struct {
	mu      sync.Mutex
	epoch   uint64
	pinned  map[uint64]int // epoch -> live token count
	retired []retiree
}

type retiree struct {
	epoch    uint64
	finalize func()
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{pinned: make(map[uint64]int)}
}

// Token is scoped, stack-bound proof that the holder may dereference Weak
// accessors registered with the same collector. Creating one registers the
// caller as pinned; Release unregisters it.
//
// A Token must never outlive the function that pinned it.
type Token struct {
	c        *Collector
	epoch    uint64
	released bool
}

// Pin registers the caller and returns a token at the current epoch.
// It never fails. The caller must Release the token before blocking.
func (c *Collector) Pin() *Token {
	c.mu.Lock()
	t := &Token{c: c, epoch: c.epoch}
	c.pinned[t.epoch]++
	c.mu.Unlock()
	return t
}

// Release unregisters the token and runs any finalizers that became safe.
// Releasing an already-released token is a no-op.
func (t *Token) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	c := t.c
	c.mu.Lock()
	if n := c.pinned[t.epoch]; n <= 1 {
		delete(c.pinned, t.epoch)
	} else {
		c.pinned[t.epoch] = n - 1
	}
	ready := c.collectLocked()
	c.mu.Unlock()
	runFinalizers(ready)
}

// WithPin runs fn with a freshly pinned token and releases it when fn
// returns. This is the preferred way to pin: the token cannot escape the
// callback, so it cannot straddle a suspension point.
func (c *Collector) WithPin(fn func(*Token)) {
	t := c.Pin()
	defer t.Release()
	fn(t)
}

// Retire schedules finalize to run once no token pinned at or before the
// current epoch remains alive. Retire never runs finalize inline while a
// conflicting token exists, and never blocks.
func (c *Collector) Retire(finalize func()) {
	if finalize == nil {
		return
	}
	c.mu.Lock()
	c.retired = append(c.retired, retiree{epoch: c.epoch, finalize: finalize})
	// Advance the global epoch so tokens pinned from now on cannot delay
	// this retiree.
	c.epoch++
	ready := c.collectLocked()
	c.mu.Unlock()
	runFinalizers(ready)
}

// Advance attempts to run retired finalizers whose retirement epoch precedes
// every currently pinned token. It is called automatically on Release and
// Retire; explicit calls are only needed to drain promptly in quiescent
// periods (tests, shutdown).
func (c *Collector) Advance() {
	c.mu.Lock()
	ready := c.collectLocked()
	c.mu.Unlock()
	runFinalizers(ready)
}

// PinnedTokens reports how many tokens are currently live.
func (c *Collector) PinnedTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.pinned {
		n += count
	}
	return n
}

// RetiredCount reports how many finalizers are still waiting on live tokens.
func (c *Collector) RetiredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retired)
}

// collectLocked removes and returns the finalizers no live token could still
// observe. Callers must hold c.mu and run the result after unlocking, since
// a finalizer may itself pin or retire.
func (c *Collector) collectLocked() []func() {
	if len(c.retired) == 0 {
		return nil
	}
	min := c.minPinnedLocked()
	var ready []func()
	kept := c.retired[:0]
	for _, r := range c.retired {
		if r.epoch < min {
			ready = append(ready, r.finalize)
		} else {
			kept = append(kept, r)
		}
	}
	// Zero the tail so dropped finalizers do not linger in the backing array.
	for i := len(kept); i < len(c.retired); i++ {
		c.retired[i] = retiree{}
	}
	c.retired = kept
	return ready
}

func (c *Collector) minPinnedLocked() uint64 {
	// Tokens are short-lived, so this map holds at most a handful of
	// distinct epochs at any time.
	min := uint64(math.MaxUint64)
	for e := range c.pinned {
		if e < min {
			min = e
		}
	}
	return min
}

func runFinalizers(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
