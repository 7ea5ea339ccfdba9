package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samsartor/checkpointui/pkg/analysis"
)

// Partial-height bar glyphs, from empty to full.
var barGlyphs = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderBarChart draws a bar chart as a width x height column plot with
// an axis label line underneath. Bins are resampled to the available
// columns, so the chart works at any terminal width. Range-estimation
// flags show up as "<" and ">" on the axis labels.
func RenderBarChart(chart analysis.BarChart, width, height int, style lipgloss.Style) string {
	if width < 4 || height < 2 {
		return ""
	}
	plotHeight := height - 1

	cols := resampleBins(chart.Bins, width)
	max := 0
	for _, c := range cols {
		if c > max {
			max = c
		}
	}

	lines := make([]string, 0, height)
	for row := 0; row < plotHeight; row++ {
		var b strings.Builder
		for _, c := range cols {
			b.WriteRune(barGlyph(c, max, plotHeight, row))
		}
		lines = append(lines, style.Render(b.String()))
	}
	lines = append(lines, axisLine(chart, width))
	return strings.Join(lines, "\n")
}

// barGlyph picks the glyph for one cell of a column. Row 0 is the top of
// the plot.
func barGlyph(count, max, plotHeight, row int) rune {
	if max == 0 || count == 0 {
		return ' '
	}
	// Height of the bar in eighths of a cell.
	eighths := count * plotHeight * 8 / max
	if eighths == 0 {
		eighths = 1 // nonzero bins always show something
	}
	cellFloor := (plotHeight - 1 - row) * 8
	switch {
	case eighths >= cellFloor+8:
		return '█'
	case eighths <= cellFloor:
		return ' '
	default:
		return barGlyphs[eighths-cellFloor]
	}
}

// resampleBins merges or repeats bins so the chart fills exactly width
// columns. Merged columns take the max of their source bins so narrow
// spikes survive downsampling.
func resampleBins(bins []int, width int) []int {
	cols := make([]int, width)
	if len(bins) == 0 {
		return cols
	}
	for i := range cols {
		lo := i * len(bins) / width
		hi := (i + 1) * len(bins) / width
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(bins) {
			hi = len(bins)
		}
		m := 0
		for _, c := range bins[lo:hi] {
			if c > m {
				m = c
			}
		}
		cols[i] = m
	}
	return cols
}

func axisLine(chart analysis.BarChart, width int) string {
	left := FormatValue(chart.Left)
	right := FormatValue(chart.Right)
	if chart.ContinuesPastLeft {
		left = "<" + left
	}
	if chart.ContinuesPastRight {
		right = right + ">"
	}
	pad := width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		pad = 1
	}
	return mutedStyle.Render(left + strings.Repeat(" ", pad) + right)
}
