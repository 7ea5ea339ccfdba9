package testutil

import (
	"testing"
	"time"
)

// Eventually polls cond every interval until it returns true or the
// deadline passes, then fails the test. Result cells are filled by a
// background worker, so most pipeline assertions are of this form.
func Eventually(t *testing.T, timeout, interval time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(interval)
	}
	t.Fatalf(format, args...)
}

// Never asserts cond stays false for the whole window. Use it to check a
// stale result does not surface after a selection change.
func Never(t *testing.T, window, interval time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf(format, args...)
		}
		time.Sleep(interval)
	}
}

// AssertBinTotal verifies the bins sum to the expected sample count.
func AssertBinTotal(t *testing.T, bins []int, want int) {
	t.Helper()
	total := 0
	for _, b := range bins {
		total += b
	}
	if total != want {
		t.Errorf("bins sum to %d, want %d", total, want)
	}
}
