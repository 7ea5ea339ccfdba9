package reclaim

import (
	"errors"
	"sync/atomic"
)

// ErrKilled is returned by Owner.Kill when the owner was already killed.
// Killing twice is a programming error; the second call does nothing beyond
// reporting it.
var ErrKilled = errors.New("reclaim: owner already killed")

// Slot lifecycle. A slot moves live -> killed at Kill time and
// killed -> reclaimed once the collector runs its finalizer.
const (
	slotLive uint32 = iota
	slotKilled
	slotReclaimed
)

// slot is the shared cell behind an Owner and all of its Weak accessors.
type slot[T any] struct {
	c     *Collector
	state atomic.Uint32
	value atomic.Pointer[T]
}

func (s *slot[T]) alive() bool      { return s.state.Load() == slotLive }
func (s *slot[T]) coll() *Collector { return s.c }

// Owner is the exclusive holder of a value. It controls when the value dies:
// Kill marks it dead immediately (all Weak accessors start returning nil and
// the kill hooks run, waking anything blocked on the value's cells) but the
// destructor is deferred through the collector until every token alive at
// kill time has been released.
type Owner[T any] struct {
	s       *slot[T]
	onKill  []func()
	destroy func(*T)
}

// NewOwner wraps v in an owner registered with c. The onKill hooks run
// synchronously inside Kill, before the destructor is retired; use them to
// close the value's cells so blocked waiters observe cancellation promptly.
func NewOwner[T any](c *Collector, v *T, onKill ...func()) *Owner[T] {
	o := &Owner[T]{s: &slot[T]{c: c}, onKill: onKill}
	o.s.value.Store(v)
	return o
}

// SetDestroy registers a destructor to run when the value is reclaimed.
// It must be called before the owner is shared with other goroutines.
func (o *Owner[T]) SetDestroy(fn func(*T)) {
	o.destroy = fn
}

// Kill marks the value dead and schedules deferred destruction. It never
// blocks and never runs the destructor inline. The second and later calls
// return ErrKilled and leave all bookkeeping untouched.
func (o *Owner[T]) Kill() error {
	if !o.s.state.CompareAndSwap(slotLive, slotKilled) {
		return ErrKilled
	}
	for _, fn := range o.onKill {
		fn()
	}
	s := o.s
	v := s.value.Load()
	destroy := o.destroy
	s.c.Retire(func() {
		s.value.Store(nil)
		s.state.Store(slotReclaimed)
		if destroy != nil && v != nil {
			destroy(v)
		}
	})
	return nil
}

// Killed reports whether Kill has been called.
func (o *Owner[T]) Killed() bool {
	return o.s.state.Load() != slotLive
}

// Value returns the owned value, or nil after Kill. Only the owning
// goroutine may call this; everyone else goes through Weak.
func (o *Owner[T]) Value() *T {
	if !o.s.alive() {
		return nil
	}
	return o.s.value.Load()
}

// Weak returns a non-owning accessor for the owned value.
func (o *Owner[T]) Weak() Weak[T] {
	s := o.s
	return Weak[T]{probe: s, deref: func() *T { return s.value.Load() }}
}

// liveProbe is the type-erased view of a slot shared by derived accessors.
type liveProbe interface {
	alive() bool
	coll() *Collector
}

// Probe is a token-free liveness check. Long computations poll one at
// bounded intervals to observe cancellation; a dead probe means the owning
// value was killed and any in-flight work for it should stop.
type Probe interface {
	Alive() bool
}

// Weak is a non-owning reference into an owner's value, or a projected field
// of it. Get requires a live token from the owner's collector and returns
// nil once the owner is killed.
type Weak[T any] struct {
	probe liveProbe
	deref func() *T
}

// Get dereferences the accessor. The returned pointer is only valid while
// tok is held; callers must not retain it past Release. Get returns nil if
// tok is released, belongs to a different collector, or the owner was
// killed.
func (w Weak[T]) Get(tok *Token) *T {
	if tok == nil || tok.released {
		return nil
	}
	if w.probe == nil || tok.c != w.probe.coll() || !w.probe.alive() {
		return nil
	}
	return w.deref()
}

// Alive reports whether the owner behind this accessor is still live. It
// needs no token because it never dereferences the value.
func (w Weak[T]) Alive() bool {
	return w.probe != nil && w.probe.alive()
}

// Derive projects a field-scoped accessor out of w. The projection shares
// w's lifetime: once the owner is killed, the derived accessor is dead too.
// proj must be pure and must not retain its argument.
func Derive[T, U any](w Weak[T], proj func(*T) *U) Weak[U] {
	parent := w.deref
	return Weak[U]{
		probe: w.probe,
		deref: func() *U {
			p := parent()
			if p == nil {
				return nil
			}
			return proj(p)
		},
	}
}

// Forever is a Probe that never reports cancellation.
var Forever Probe = foreverProbe{}

type foreverProbe struct{}

func (foreverProbe) Alive() bool { return true }
