package reclaim

import (
	"errors"
	"testing"
)

type payload struct {
	name string
	flag bool
}

func TestOwner_WeakGetWhileLive(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{name: "w.0"})
	w := o.Weak()

	c.WithPin(func(tok *Token) {
		p := w.Get(tok)
		if p == nil {
			t.Fatal("Get returned nil for a live owner")
		}
		if p.name != "w.0" {
			t.Errorf("name=%q, want %q", p.name, "w.0")
		}
	})
}

func TestOwner_KillHidesValueImmediately(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{})
	w := o.Weak()

	if err := o.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	if w.Alive() {
		t.Error("Alive=true after Kill")
	}
	c.WithPin(func(tok *Token) {
		if w.Get(tok) != nil {
			t.Error("Get returned a value after Kill")
		}
	})
}

func TestOwner_DoubleKill(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{})

	if err := o.Kill(); err != nil {
		t.Fatalf("first Kill: %v", err)
	}
	if err := o.Kill(); !errors.Is(err, ErrKilled) {
		t.Errorf("second Kill err=%v, want ErrKilled", err)
	}
	// Bookkeeping must be untouched by the failed call.
	c.Advance()
	if got := c.RetiredCount(); got != 0 {
		t.Errorf("RetiredCount=%d, want 0", got)
	}
}

func TestOwner_DestructorDeferredUntilTokensDrain(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{})
	destroyed := false
	o.SetDestroy(func(*payload) { destroyed = true })

	tok := c.Pin() // alive at kill time
	if err := o.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if destroyed {
		t.Fatal("destructor ran while a kill-time token was pinned")
	}

	tok.Release()
	if !destroyed {
		t.Error("destructor did not run after the kill-time token drained")
	}
}

func TestOwner_KillRunsHooksBeforeRetiring(t *testing.T) {
	c := NewCollector()

	var order []string
	o := NewOwner(c, &payload{},
		func() { order = append(order, "hook") },
	)
	o.SetDestroy(func(*payload) { order = append(order, "destroy") })

	if err := o.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if len(order) != 2 || order[0] != "hook" || order[1] != "destroy" {
		t.Errorf("order=%v, want [hook destroy]", order)
	}
}

func TestWeak_Derive(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{name: "proj"})
	nameW := Derive(o.Weak(), func(p *payload) *string { return &p.name })

	c.WithPin(func(tok *Token) {
		n := nameW.Get(tok)
		if n == nil || *n != "proj" {
			t.Fatalf("derived Get=%v, want proj", n)
		}
	})

	if err := o.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if nameW.Alive() {
		t.Error("derived accessor alive after owner kill")
	}
	c.WithPin(func(tok *Token) {
		if nameW.Get(tok) != nil {
			t.Error("derived Get returned a value after owner kill")
		}
	})
}

func TestWeak_RejectsForeignAndReleasedTokens(t *testing.T) {
	c := NewCollector()
	other := NewCollector()
	o := NewOwner(c, &payload{})
	w := o.Weak()

	foreign := other.Pin()
	defer foreign.Release()
	if w.Get(foreign) != nil {
		t.Error("Get accepted a token from a different collector")
	}

	tok := c.Pin()
	tok.Release()
	if w.Get(tok) != nil {
		t.Error("Get accepted a released token")
	}
	if w.Get(nil) != nil {
		t.Error("Get accepted a nil token")
	}
}

// Every derived accessor returns absence once no token predating the kill
// remains alive, within a bounded number of observations.
func TestWeak_EventualAbsenceAfterKill(t *testing.T) {
	c := NewCollector()
	o := NewOwner(c, &payload{flag: true})
	flagW := Derive(o.Weak(), func(p *payload) *bool { return &p.flag })

	old := c.Pin()
	if err := o.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	old.Release()

	for i := 0; i < 10; i++ {
		absent := true
		c.WithPin(func(tok *Token) {
			if flagW.Get(tok) != nil {
				absent = false
			}
		})
		if absent {
			return
		}
	}
	t.Error("derived accessor still present 10 observations after kill")
}
