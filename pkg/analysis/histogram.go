// Package analysis computes per-tensor statistics (value histograms and
// singular-value spectra) on a background worker, with cooperative
// cancellation at sub-computation granularity. The UI never blocks on a
// computation: it kills the current Analysis when the selection changes
// and polls result cells each render tick.
package analysis

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/samsartor/checkpointui/pkg/reclaim"
)

// Sentinel errors for the worker's control flow. Cancelled aborts are
// discarded silently; the rest surface through the failure cell.
var (
	ErrCancelled   = errors.New("analysis: cancelled")
	ErrEmptyTensor = errors.New("analysis: tensor is empty")
	ErrNotMatrix   = errors.New("analysis: tensor is not a 2-D matrix")
)

// quartileSamples is the sample size used to estimate display percentiles.
// Sorting the full tensor would dominate the analysis cost; 200 random
// samples give a stable enough 5%/95% estimate for a terminal-width chart.
const quartileSamples = 200

// cancelStride bounds how many elements a linear pass scans between
// cancellation checks, keeping worst-case cancellation latency small even
// on multi-billion element tensors.
const cancelStride = 1 << 18

// BarChart is a binned view of a distribution, ready for terminal
// rendering. Left and Right are the display range; the ContinuesPast
// flags mark that the range was estimated from percentiles and outliers
// fall outside it.
type BarChart struct {
	Bins               []int
	Left               float32
	Right              float32
	ContinuesPastLeft  bool
	ContinuesPastRight bool
}

// DefaultBarChart is the placeholder chart rendered for degenerate inputs.
func DefaultBarChart() BarChart {
	return BarChart{
		Bins:               []int{0},
		Left:               0,
		Right:              1,
		ContinuesPastLeft:  true,
		ContinuesPastRight: true,
	}
}

// Histogram is the binned value distribution of one tensor, plus the true
// extrema of the full data.
type Histogram struct {
	Min   float32
	Max   float32
	Chart BarChart
}

// NewHistogram bins data into at most maxBins buckets. The display range is
// estimated from sampled 5%/95% percentiles on large tensors so a handful
// of outliers cannot flatten the chart; forceMinZero pins the left edge at
// zero (used for singular-value spectra, which are non-negative).
//
// cancel is polled at bounded intervals; a dead probe aborts the pass with
// ErrCancelled and nothing is published.
func NewHistogram(data []float32, maxBins int, forceMinZero bool, cancel reclaim.Probe) (Histogram, error) {
	if len(data) == 0 {
		return Histogram{}, ErrEmptyTensor
	}
	if maxBins < 1 {
		maxBins = 1
	}

	// Estimate quantiles from a random sample rather than sorting the
	// full tensor.
	var sample []float32
	if len(data) > quartileSamples {
		sample = make([]float32, quartileSamples)
		for i := range sample {
			sample[i] = data[rand.Intn(len(data))]
		}
	} else {
		sample = append(sample, data...)
	}
	sort.Slice(sample, func(i, j int) bool {
		a, b := sample[i], sample[j]
		if !isFinite(a) {
			a = 0
		}
		if !isFinite(b) {
			b = 0
		}
		return a < b
	})
	if !cancel.Alive() {
		return Histogram{}, ErrCancelled
	}

	// True extrema come from the full dataset.
	min := float32(math.Inf(1))
	max := float32(math.Inf(-1))
	for i, x := range data {
		if i%cancelStride == 0 && i > 0 && !cancel.Alive() {
			return Histogram{}, ErrCancelled
		}
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}

	left := min
	if forceMinZero {
		left = 0
	}
	right := max

	estimated := len(sample) >= quartileSamples
	if estimated {
		// Extrapolate the 0% and 100% points from the 5% and 95%
		// percentiles, then pad the right edge by 15%.
		p05 := sample[int(float32(len(sample)-1)*0.05)]
		p95 := sample[int(float32(len(sample)-1)*0.95)]
		if !forceMinZero {
			left = p05 - 0.05*(p95-p05)/0.90
		}
		right = p95 + 0.05*(p95-p05)/0.90
		right += 0.15 * right / 0.85
	}

	binCount := len(data) / 5
	if binCount < 5 {
		binCount = 5
	}
	if binCount > maxBins {
		binCount = maxBins
	}
	bins := make([]int, binCount)
	binsEnd := float32(binCount - 1)

	// Constant data makes the range zero and the scale infinite; clamp
	// to 1 so every sample lands in the first bin.
	scale := float32(binCount) / (right - left)
	if !isFinite(scale) {
		scale = 1
	}

	for i, x := range data {
		if i%cancelStride == 0 && i > 0 && !cancel.Alive() {
			return Histogram{}, ErrCancelled
		}
		bin := (x - left) * scale
		if bin < 0 {
			bin = 0
		} else if bin > binsEnd {
			bin = binsEnd
		}
		if !isFinite(bin) {
			continue // NaN samples are skipped, not binned
		}
		bins[int(bin)]++
	}

	return Histogram{
		Min: min,
		Max: max,
		Chart: BarChart{
			Bins:               bins,
			Left:               left,
			Right:              right,
			ContinuesPastLeft:  estimated && !forceMinZero,
			ContinuesPastRight: estimated,
		},
	}, nil
}

func isFinite(x float32) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
