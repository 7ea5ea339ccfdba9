package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/samsartor/checkpointui/pkg/model"
)

// FormatCount renders an element count with base-1000 suffixes, e.g.
// "124.4M" for a 124-million parameter module. Counts below 1000 are
// printed verbatim.
func FormatCount(n uint64) string {
	switch {
	case n >= 1_000_000_000_000:
		return fmt.Sprintf("%.1fT", float64(n)/1e12)
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatBytes renders a byte size with binary (1024-based) suffixes.
func FormatBytes(n uint64) string {
	switch {
	case n >= 1<<40:
		return fmt.Sprintf("%.1fTiB", float64(n)/float64(1<<40))
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// FormatShape renders a tensor shape as "[4096, 1024]". A scalar shape
// renders as "[]".
func FormatShape(shape []uint64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatValue renders a float for axis labels: compact, no trailing
// noise for round values.
func FormatValue(v float32) string {
	f := float64(v)
	av := f
	if av < 0 {
		av = -av
	}
	switch {
	case av != 0 && (av < 0.001 || av >= 100000):
		return fmt.Sprintf("%.2e", f)
	case av >= 100:
		return fmt.Sprintf("%.1f", f)
	default:
		return fmt.Sprintf("%.3g", f)
	}
}

// FormatMetadataValue renders a decoded metadata value for the file
// info panel. Nested structures are kept on one line.
func FormatMetadataValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Truncate shortens s to at most width display cells, appending an
// ellipsis when anything was cut. Width accounting is rune-aware so
// wide glyphs do not overflow the cell budget.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return runewidth.Truncate(s, width-1, "") + "…"
}

func tensorByteSize(info model.TensorInfo) uint64 {
	return info.End - info.Start
}
