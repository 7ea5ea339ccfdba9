package reclaim

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

func TestCollector_RetireWithoutPinsRunsImmediately(t *testing.T) {
	c := NewCollector()

	ran := false
	c.Retire(func() { ran = true })

	if !ran {
		t.Error("finalizer should run immediately with no pinned tokens")
	}
	if c.RetiredCount() != 0 {
		t.Errorf("RetiredCount=%d, want 0", c.RetiredCount())
	}
}

func TestCollector_TokenDefersFinalizer(t *testing.T) {
	c := NewCollector()

	tok := c.Pin()
	ran := false
	c.Retire(func() { ran = true })

	if ran {
		t.Fatal("finalizer ran while a pre-retire token was still pinned")
	}
	c.Advance()
	if ran {
		t.Fatal("Advance freed a finalizer a live token could observe")
	}

	tok.Release()
	if !ran {
		t.Error("finalizer should run once the last old token is released")
	}
}

func TestCollector_LateTokenDoesNotDelay(t *testing.T) {
	c := NewCollector()

	old := c.Pin()
	ran := false
	c.Retire(func() { ran = true })

	// A token pinned after retirement is in a newer epoch and must not
	// stall the retiree.
	late := c.Pin()
	defer late.Release()

	old.Release()
	if !ran {
		t.Error("finalizer delayed by a token pinned after retirement")
	}
}

func TestCollector_ReleaseIdempotent(t *testing.T) {
	c := NewCollector()
	tok := c.Pin()
	tok.Release()
	tok.Release() // no panic, no double-unpin

	if got := c.PinnedTokens(); got != 0 {
		t.Errorf("PinnedTokens=%d, want 0", got)
	}
}

func TestCollector_WithPinReleasesOnReturn(t *testing.T) {
	c := NewCollector()
	c.WithPin(func(tok *Token) {
		if c.PinnedTokens() != 1 {
			t.Errorf("PinnedTokens inside WithPin=%d, want 1", c.PinnedTokens())
		}
	})
	if c.PinnedTokens() != 0 {
		t.Errorf("PinnedTokens after WithPin=%d, want 0", c.PinnedTokens())
	}
}

func TestCollector_FinalizerOrderAcrossEpochs(t *testing.T) {
	c := NewCollector()

	var order []int
	tok := c.Pin()
	c.Retire(func() { order = append(order, 1) })
	c.Retire(func() { order = append(order, 2) })
	tok.Release()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("finalizer order = %v, want [1 2]", order)
	}
}

func TestCollector_ConcurrentPinRelease(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tok := c.Pin()
				tok.Release()
				if j%100 == 0 {
					c.Retire(func() {})
				}
			}
		}()
	}
	wg.Wait()

	c.Advance()
	if got := c.PinnedTokens(); got != 0 {
		t.Errorf("PinnedTokens=%d, want 0", got)
	}
	if got := c.RetiredCount(); got != 0 {
		t.Errorf("RetiredCount=%d, want 0", got)
	}
}

// TestCollector_NeverFreesObservable drives random pin/retire/release
// interleavings and checks that a finalizer never runs while a token that
// predates its retirement is still pinned.
func TestCollector_NeverFreesObservable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewCollector()

		type pending struct {
			tokens map[*Token]bool // pinned before the retire
			ran    *bool
		}
		live := make(map[*Token]bool)
		var outstanding []pending

		steps := rapid.IntRange(1, 50).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0: // pin
				live[c.Pin()] = true
			case 1: // retire
				ran := false
				tokens := make(map[*Token]bool, len(live))
				for tok := range live {
					tokens[tok] = true
				}
				outstanding = append(outstanding, pending{tokens: tokens, ran: &ran})
				c.Retire(func() { ran = true })
			case 2: // release one
				for tok := range live {
					delete(live, tok)
					tok.Release()
					break
				}
			}

			for _, p := range outstanding {
				blocked := false
				for tok := range p.tokens {
					if live[tok] {
						blocked = true
						break
					}
				}
				if *p.ran && blocked {
					rt.Fatal("finalizer ran while a pre-retire token was pinned")
				}
			}
		}

		for tok := range live {
			tok.Release()
		}
		c.Advance()
		for _, p := range outstanding {
			if !*p.ran {
				rt.Fatal("finalizer never ran after all tokens released")
			}
		}
	})
}
