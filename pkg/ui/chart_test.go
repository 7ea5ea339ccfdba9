package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/samsartor/checkpointui/pkg/analysis"
)

func TestResampleBins(t *testing.T) {
	// Downsampling keeps the max so spikes survive.
	cols := resampleBins([]int{0, 9, 0, 0, 1, 1}, 3)
	want := []int{9, 0, 1}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("resample down = %v, want %v", cols, want)
		}
	}

	// Upsampling repeats bins.
	cols = resampleBins([]int{2, 5}, 4)
	want = []int{2, 2, 5, 5}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("resample up = %v, want %v", cols, want)
		}
	}

	cols = resampleBins(nil, 3)
	for _, c := range cols {
		if c != 0 {
			t.Fatal("empty bins produced nonzero columns")
		}
	}
}

func TestBarGlyph(t *testing.T) {
	// A full-height bar fills every cell of its column.
	for row := 0; row < 4; row++ {
		if g := barGlyph(10, 10, 4, row); g != '█' {
			t.Errorf("full bar row %d = %q", row, g)
		}
	}
	// A zero bin is blank everywhere.
	for row := 0; row < 4; row++ {
		if g := barGlyph(0, 10, 4, row); g != ' ' {
			t.Errorf("zero bar row %d = %q", row, g)
		}
	}
	// A tiny but nonzero bin still shows at the bottom row.
	if g := barGlyph(1, 1000000, 4, 3); g == ' ' {
		t.Error("nonzero bin rendered blank")
	}
	if g := barGlyph(1, 1000000, 4, 0); g != ' ' {
		t.Error("tiny bin filled the top row")
	}
}

func TestRenderBarChart(t *testing.T) {
	chart := analysis.BarChart{
		Bins:  []int{1, 5, 10, 5, 1},
		Left:  -1,
		Right: 1,
	}
	out := RenderBarChart(chart, 20, 6, lipgloss.NewStyle())
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6", len(lines))
	}
	axis := lines[len(lines)-1]
	if !strings.Contains(axis, "-1") || !strings.Contains(axis, "1") {
		t.Errorf("axis labels missing: %q", axis)
	}
	if strings.Contains(axis, "<") || strings.Contains(axis, ">") {
		t.Errorf("unexpected continuation markers: %q", axis)
	}
}

func TestRenderBarChart_ContinuationMarkers(t *testing.T) {
	chart := analysis.BarChart{
		Bins:               []int{3, 3},
		Left:               0,
		Right:              10,
		ContinuesPastLeft:  true,
		ContinuesPastRight: true,
	}
	out := RenderBarChart(chart, 20, 4, lipgloss.NewStyle())
	lines := strings.Split(out, "\n")
	axis := lines[len(lines)-1]
	if !strings.Contains(axis, "<0") {
		t.Errorf("left continuation marker missing: %q", axis)
	}
	if !strings.Contains(axis, "10>") {
		t.Errorf("right continuation marker missing: %q", axis)
	}
}

func TestRenderBarChart_TooSmall(t *testing.T) {
	if out := RenderBarChart(analysis.DefaultBarChart(), 2, 1, lipgloss.NewStyle()); out != "" {
		t.Errorf("tiny chart = %q, want empty", out)
	}
}
