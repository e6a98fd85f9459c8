package cli

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#2563EB")
	dim    = lipgloss.Color("#6B7280")
	danger = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(danger)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
)
