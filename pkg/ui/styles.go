package ui

import "github.com/charmbracelet/lipgloss"

// Design tokens. Adaptive colors keep the palette readable on light and
// dark terminals alike.
var (
	moduleColor = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#64b5f6"}
	tensorColor = lipgloss.AdaptiveColor{Light: "#00838f", Dark: "#4dd0e1"}
	shapeColor  = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#e8e8e8"}
	dtypeColor  = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffb74d"}
	countColor  = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#aaaaaa"}
	sizeColor   = lipgloss.AdaptiveColor{Light: "#7b1fa2", Dark: "#ce93d8"}
	errorColor  = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#666666"}

	borderColor      = lipgloss.AdaptiveColor{Light: "#aaaaaa", Dark: "#444444"}
	borderFocusColor = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffd54f"}

	histogramColor = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#64b5f6"}
	spectrumColor  = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#81c784"}
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	panelFocusStyle = panelStyle.
			BorderForeground(borderFocusColor)

	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Bold(true)

	moduleStyle = lipgloss.NewStyle().Foreground(moduleColor).Bold(true)
	tensorStyle = lipgloss.NewStyle().Foreground(tensorColor)
	shapeStyle  = lipgloss.NewStyle().Foreground(shapeColor)
	dtypeStyle  = lipgloss.NewStyle().Foreground(dtypeColor)
	countStyle  = lipgloss.NewStyle().Foreground(countColor)
	sizeStyle   = lipgloss.NewStyle().Foreground(sizeColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.AdaptiveColor{Light: "#bbdefb", Dark: "#1a3a5c"})

	histogramBarStyle = lipgloss.NewStyle().Foreground(histogramColor)
	spectrumBarStyle  = lipgloss.NewStyle().Foreground(spectrumColor)

	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle = lipgloss.NewStyle().Foreground(dtypeColor)
)
