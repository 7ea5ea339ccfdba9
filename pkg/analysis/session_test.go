package analysis

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/samsartor/checkpointui/pkg/model"
	"github.com/samsartor/checkpointui/pkg/reclaim"
	"github.com/samsartor/checkpointui/pkg/testutil"
)

func newTestSession(t *testing.T, src *testutil.MemorySource) *Session {
	t.Helper()
	s := NewSession(reclaim.NewCollector(), src, 32)
	t.Cleanup(s.Close)
	return s
}

func binTotal(bins []int) int {
	total := 0
	for _, b := range bins {
		total += b
	}
	return total
}

func TestSession_PublishesHistogram(t *testing.T) {
	src := testutil.NewMemorySource(map[string][]float32{
		"layer.weight": testutil.UniformTensor(100, 0, 10, 42),
	})
	s := newTestSession(t, src)

	s.Select(src.Info("layer.weight"))

	var h Histogram
	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		var ok bool
		h, ok = s.PollHistogram()
		return ok
	}, "histogram never published")

	if got := binTotal(h.Chart.Bins); got != 100 {
		t.Errorf("bins sum to %d, want 100", got)
	}
	if _, ok := s.PollFailure(); ok {
		t.Error("unexpected failure published")
	}
}

func TestSession_PublishesSpectrumForMatrix(t *testing.T) {
	eye := make([]float32, 16)
	for i := 0; i < 4; i++ {
		eye[i*4+i] = 1
	}
	src := testutil.NewMemorySource(map[string][]float32{"m": eye})
	src.SetShape("m", 4, 4)
	s := newTestSession(t, src)

	s.Select(src.Info("m"))

	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		_, ok := s.PollSpectrum()
		return ok
	}, "spectrum never published for a matrix tensor")
}

func TestSession_NoSpectrumForVector(t *testing.T) {
	src := testutil.NewMemorySource(map[string][]float32{
		"bias": testutil.UniformTensor(64, -1, 1, 7),
	})
	s := newTestSession(t, src)

	s.Select(src.Info("bias"))

	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		_, ok := s.PollHistogram()
		return ok
	}, "histogram never published")

	// A vector has no spectrum, and its absence is not a failure.
	if _, ok := s.PollSpectrum(); ok {
		t.Error("spectrum published for a 1-D tensor")
	}
	if err, ok := s.PollFailure(); ok {
		t.Errorf("unexpected failure: %v", err)
	}
}

func TestSession_DataErrorIsNotFatal(t *testing.T) {
	src := testutil.NewMemorySource(map[string][]float32{
		"bad":  testutil.ConstantTensor(10, 1),
		"good": testutil.UniformTensor(100, 0, 1, 5),
	})
	src.FailNames["bad"] = true
	s := newTestSession(t, src)

	s.Select(src.Info("bad"))

	var failure error
	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		var ok bool
		failure, ok = s.PollFailure()
		return ok
	}, "read failure never published")
	var de *model.DataError
	if !errors.As(failure, &de) {
		t.Errorf("published failure %v is not a DataError", failure)
	}

	// The worker must keep serving after a failed read.
	s.Select(src.Info("good"))
	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		_, ok := s.PollHistogram()
		return ok
	}, "worker did not survive a DataError")
}

func TestSession_SelectionChangeCancelsInFlight(t *testing.T) {
	big := testutil.ConstantTensor(50_000, 1)
	small := testutil.UniformTensor(64, 0, 1, 11)
	src := testutil.NewMemorySource(map[string][]float32{"x": big, "y": small})
	src.ReadDelay = time.Millisecond // ~50 chunks, plenty of cancel windows
	s := newTestSession(t, src)

	s.Select(src.Info("x"))

	// Grab the first aggregate before superseding it.
	s.mu.Lock()
	first := s.current.Value()
	firstWeak := s.current.Weak()
	s.mu.Unlock()

	s.Select(src.Info("y"))

	if firstWeak.Alive() {
		t.Error("superseded analysis still alive after reselect")
	}
	if !first.Histogram.Closed() || !first.Cancel.Closed() {
		t.Error("superseded analysis cells not closed")
	}

	// Only the new selection's result may surface.
	var h Histogram
	testutil.Eventually(t, 5*time.Second, time.Millisecond, func() bool {
		var ok bool
		h, ok = s.PollHistogram()
		return ok
	}, "histogram for the new selection never published")
	if got := binTotal(h.Chart.Bins); got != len(small) {
		t.Errorf("bins sum to %d, want %d: a stale result surfaced", got, len(small))
	}
}

func TestSession_CancelCurrentStopsComputation(t *testing.T) {
	big := testutil.ConstantTensor(50_000, 1)
	src := testutil.NewMemorySource(map[string][]float32{"x": big})
	src.ReadDelay = time.Millisecond
	s := newTestSession(t, src)

	s.Select(src.Info("x"))
	s.CancelCurrent()

	testutil.Never(t, 300*time.Millisecond, 5*time.Millisecond, func() bool {
		_, ok := s.PollHistogram()
		return ok
	}, "cancelled computation still published a histogram")
}

func TestSession_DeselectClearsResults(t *testing.T) {
	src := testutil.NewMemorySource(map[string][]float32{
		"w": testutil.UniformTensor(100, 0, 1, 3),
	})
	s := newTestSession(t, src)

	s.Select(src.Info("w"))
	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		_, ok := s.PollHistogram()
		return ok
	}, "histogram never published")

	s.Deselect()
	if _, ok := s.PollHistogram(); ok {
		t.Error("histogram still visible after deselect")
	}
	if _, ok := s.Selected(); ok {
		t.Error("selection still visible after deselect")
	}
}

func TestSession_CloseStopsWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := testutil.NewMemorySource(map[string][]float32{
		"w": testutil.UniformTensor(100, 0, 1, 3),
	})
	s := NewSession(reclaim.NewCollector(), src, 32)
	s.Select(src.Info("w"))
	s.Close()
	s.Close() // idempotent
}

func TestSession_NoResourceGrowth(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := testutil.NewMemorySource(map[string][]float32{
		"a": testutil.UniformTensor(256, 0, 1, 1),
		"b": testutil.UniformTensor(256, 0, 1, 2),
	})
	coll := reclaim.NewCollector()
	s := NewSession(coll, src, 32)

	for i := 0; i < 10_000; i++ {
		if i%2 == 0 {
			s.Select(src.Info("a"))
		} else {
			s.Select(src.Info("b"))
		}
		s.Tick()
	}
	s.Close()

	coll.Advance()
	if n := coll.RetiredCount(); n != 0 {
		t.Errorf("%d retirees never reclaimed", n)
	}
	if n := coll.PinnedTokens(); n != 0 {
		t.Errorf("%d tokens still pinned after shutdown", n)
	}
}
