package tui

import "github.com/charmbracelet/lipgloss"

// Parley colors
var (
	colorTeal    = lipgloss.Color("#2EC4B6")
	colorSea     = lipgloss.Color("#3A86FF")
	colorSand    = lipgloss.Color("#F4D35E")
	colorDimGray = lipgloss.Color("#555555")
	colorGreen   = lipgloss.Color("#50C878")
	colorRed     = lipgloss.Color("#FF6B6B")
	colorCyan    = lipgloss.Color("#88C0D0")
	colorWhite   = lipgloss.Color("#E6E6E6")
	colorSubtle  = lipgloss.Color("#888888")
)

var (
	chatBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorTeal).
		Padding(0, 1)

	inputBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorSea).
		Padding(0, 1)

	statusBar = lipgloss.NewStyle().
		Foreground(colorSand).
		Bold(true).
		Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
		Foreground(colorTeal).
		Bold(true)

	subtleStyle = lipgloss.NewStyle().
		Foreground(colorSubtle)

	userLabelStyle = lipgloss.NewStyle().
		Foreground(colorSea).
		Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
		Foreground(colorTeal).
		Bold(true)

	textStyle = lipgloss.NewStyle().
		Foreground(colorWhite)

	toolCallStyle = lipgloss.NewStyle().
		Foreground(colorCyan)

	toolResultStyle = lipgloss.NewStyle().
		Foreground(colorDimGray)

	errorStyle = lipgloss.NewStyle().
		Foreground(colorRed)

	successStyle = lipgloss.NewStyle().
		Foreground(colorGreen)

	stateStyles = map[string]lipgloss.Style{
		"idle":            subtleStyle,
		"awaiting_model":  lipgloss.NewStyle().Foreground(colorSea).Bold(true),
		"executing_tools": lipgloss.NewStyle().Foreground(colorCyan).Bold(true),
		"done":            successStyle,
		"failed":          errorStyle,
	}

	stateLabels = map[string]string{
		"idle":            "ready",
		"awaiting_model":  "thinking",
		"executing_tools": "running tools",
		"done":            "done",
		"failed":          "failed",
	}
)

func stateStyle(state string) lipgloss.Style {
	if style, ok := stateStyles[state]; ok {
		return style
	}
	return subtleStyle
}

func stateLabel(state string) string {
	if label, ok := stateLabels[state]; ok {
		return label
	}
	return state
}
