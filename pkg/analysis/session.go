package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samsartor/checkpointui/pkg/cell"
	"github.com/samsartor/checkpointui/pkg/debug"
	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// Session owns one background analysis worker and at most one current
// Analysis. Selecting a tensor kills the previous Analysis (closing its
// cells and waking the worker if it was blocked on them) and hands the
// worker a weak accessor to the new one through a single-slot request
// cell, so only the newest selection is ever computed.
//
// All UI-facing methods are non-blocking; the render loop may call them
// every tick. Close stops the worker and is required before the process
// exits so goroutine leak checks stay clean.
type Session struct {
	coll    *reclaim.Collector
	source  model.TensorSource
	maxBins int

	// requests carries a weak accessor for the newest Analysis. A stale
	// undelivered accessor is dropped before the next one is set.
	requests *cell.Cell[reclaim.Weak[Analysis]]

	mu      sync.Mutex
	current *reclaim.Owner[Analysis]
	weak    reclaim.Weak[Analysis]

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession starts the worker goroutine reading from source. maxBins
// bounds the histogram resolution; it is normally the terminal width.
func NewSession(coll *reclaim.Collector, source model.TensorSource, maxBins int) *Session {
	s := &Session{
		coll:     coll,
		source:   source,
		maxBins:  maxBins,
		requests: cell.New[reclaim.Weak[Analysis]](),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Collector exposes the session's collector so callers can pin tokens for
// their own weak accessors.
func (s *Session) Collector() *reclaim.Collector { return s.coll }

// Select replaces the current Analysis with a fresh one for info. The
// previous Analysis is killed first: its cells close immediately, so a
// result computed for the old selection can never surface.
func (s *Session) Select(info model.TensorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.killCurrentLocked()

	a := newAnalysis(info, s.maxBins)
	owner := reclaim.NewOwner(s.coll, a, a.closeCells)
	s.current = owner
	s.weak = owner.Weak()

	// Drop a stale request the worker never picked up, then hand over
	// the new one. Select is the only setter, so Set cannot race another
	// fill; a closed cell just means the session is shutting down.
	s.requests.TryTake()
	if err := s.requests.Set(s.weak); err != nil {
		debug.Log("session: request handoff after close: %v", err)
	}
}

// Deselect kills the current Analysis without starting a new one.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killCurrentLocked()
	s.requests.TryTake()
}

// CancelCurrent aborts the in-flight computation but keeps the selection
// and any results already published.
func (s *Session) CancelCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.currentLocked(); a != nil {
		a.Cancel.Close()
	}
}

// Selected returns the currently selected tensor, if any.
func (s *Session) Selected() (model.TensorInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.currentLocked(); a != nil {
		return a.Tensor, true
	}
	return model.TensorInfo{}, false
}

// PollHistogram returns the current selection's histogram if it has been
// published. Never blocks.
func (s *Session) PollHistogram() (Histogram, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.currentLocked(); a != nil {
		return a.Histogram.TryGet()
	}
	return Histogram{}, false
}

// PollSpectrum returns the current selection's spectrum if it has been
// published. Never blocks.
func (s *Session) PollSpectrum() (Spectrum, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.currentLocked(); a != nil {
		return a.Spectrum.TryGet()
	}
	return Spectrum{}, false
}

// PollFailure returns the error published for the current selection, if
// any. Never blocks.
func (s *Session) PollFailure() (error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.currentLocked(); a != nil {
		return a.Failure.TryGet()
	}
	return nil, false
}

// SetSource swaps the tensor source, used when the checkpoint file is
// reloaded. The current Analysis is killed first so the worker never
// reads a stale selection from the new source. The caller keeps
// ownership of both sources; close the old one after this returns.
func (s *Session) SetSource(source model.TensorSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killCurrentLocked()
	s.source = source
}

func (s *Session) getSource() model.TensorSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Tick lets the collector free retirees whose epochs have drained. The UI
// calls this once per render tick; tests call it directly.
func (s *Session) Tick() {
	s.coll.Advance()
}

// Close kills the current Analysis, closes the request cell (the worker's
// terminal shutdown signal), and waits for the worker to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.killCurrentLocked()
		s.requests.Close()
		s.mu.Unlock()

		<-s.done
		s.coll.Advance()
	})
}

// currentLocked dereferences the current Analysis. The session owns it, so
// no token is needed; Value returns nil once killed.
func (s *Session) currentLocked() *Analysis {
	if s.current == nil {
		return nil
	}
	return s.current.Value()
}

func (s *Session) killCurrentLocked() {
	if s.current == nil {
		return
	}
	if err := s.current.Kill(); err != nil && !errors.Is(err, reclaim.ErrKilled) {
		debug.Log("session: kill: %v", err)
	}
	s.current = nil
	s.weak = reclaim.Weak[Analysis]{}
	s.coll.Advance()
}

// run is the worker loop: take the newest request, analyze, publish.
// DataError and cancellation are not fatal; only a closed request cell
// stops the loop.
func (s *Session) run() {
	defer close(s.done)
	ctx := context.Background()
	for {
		w, err := s.requests.Take(ctx)
		if err != nil {
			return // cell closed, session shutdown
		}
		start := time.Now()
		err = s.analyze(w)
		switch {
		case err == nil:
			debug.LogTiming("analysis", time.Since(start))
		case errors.Is(err, ErrCancelled) || errors.Is(err, cell.ErrClosed):
			debug.Log("analysis cancelled after %v", time.Since(start))
		default:
			debug.Log("analysis failed: %v", err)
			s.reportFailure(w, err)
		}
	}
}

// analyze runs one request to completion or cancellation. The token
// discipline: every dereference of the Analysis happens inside a pinned
// scope, and no pin is held across tensor reads or numeric passes; those
// observe cancellation through the probe instead.
func (s *Session) analyze(w reclaim.Weak[Analysis]) error {
	var (
		req    Request
		cancel cancelProbe
		ok     bool
	)
	s.coll.WithPin(func(tok *reclaim.Token) {
		a := w.Get(tok)
		if a == nil {
			return
		}
		req, ok = a.Request.TryTake()
		cancel = cancelProbe{weak: w, cancel: a.Cancel}
	})
	if !ok {
		return ErrCancelled
	}
	histCell := reclaim.Derive(w, func(a *Analysis) *cell.Cell[Histogram] { return a.Histogram })
	specCell := reclaim.Derive(w, func(a *Analysis) *cell.Cell[Spectrum] { return a.Spectrum })

	data, err := s.getSource().TensorF32(req.Tensor, cancel)
	if !cancel.Alive() {
		// A read aborted by cancellation may surface as a source error;
		// either way the result belongs to a dead selection.
		return ErrCancelled
	}
	if err != nil {
		return err
	}

	h, err := NewHistogram(data, req.MaxBins, false, cancel)
	if err != nil {
		return err
	}
	if err := publish(s.coll, histCell, h); err != nil {
		return err
	}

	sp, err := NewSpectrum(req.Tensor, data, req.MaxBins, cancel)
	if errors.Is(err, ErrNotMatrix) {
		return nil // vectors and scalars have no spectrum
	}
	if err != nil {
		return err
	}
	return publish(s.coll, specCell, sp)
}

// reportFailure publishes err through the failure cell. A dead accessor or
// closed cell means nobody is listening anymore; that is fine.
func (s *Session) reportFailure(w reclaim.Weak[Analysis], err error) {
	failCell := reclaim.Derive(w, func(a *Analysis) *cell.Cell[error] { return a.Failure })
	if perr := publish(s.coll, failCell, err); perr != nil && !errors.Is(perr, ErrCancelled) {
		debug.Log("session: failure report dropped: %v", perr)
	}
}

// publish sets v into the cell behind w under a pinned token. Set itself
// never suspends, so holding the pin across it is safe. A dead accessor or
// a cell closed by a kill maps to ErrCancelled: the result belongs to a
// superseded selection and must be dropped.
func publish[T any](coll *reclaim.Collector, w reclaim.Weak[cell.Cell[T]], v T) error {
	err := ErrCancelled
	coll.WithPin(func(tok *reclaim.Token) {
		c := w.Get(tok)
		if c == nil {
			return
		}
		err = c.Set(v)
	})
	if errors.Is(err, cell.ErrClosed) {
		return ErrCancelled
	}
	return err
}
